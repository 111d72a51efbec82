// Command patchpage hosts a captured page, keeps its URLs pointed at the
// replay server and prints the patched markup.
//
// Configuration:
//   - Environment variables (REPLAY_*, FETCH_*, SANDBOX_*, LOG_*)
//   - An optional -config file (.yaml, .toml or .json) overlaid on them
//   - CLI flags (override both)
//
// Usage:
//
//	# Patch a capture, archive identity from flags
//	./patchpage -in capture.html.gz -page-origin http://localhost:8080/index.html \
//	    -archive-origin https://www.example.com -server-base http://localhost:8080/replay
//
//	# Fetch a live replay, run its scripts and write a report
//	./patchpage -url http://localhost:8080/replay/index.html -scripts -report report.json
//
//	# Patch a directory of captures served from /replay/, four at a time
//	./patchpage -dir captures -glob '**/*.html*' -out-dir patched -workers 4 \
//	    -page-origin http://localhost:8080/replay/ -archive-origin https://www.example.com \
//	    -report summary.json
//
// Logs go to stderr; the patched page goes to stdout unless -out is set.
package main
