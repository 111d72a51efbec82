// Package batch patches a directory of captured pages.
//
// Captures are discovered with a concurrent directory walk, filtered by an
// optional doublestar pattern ("sites/**/*.html.gz"), and patched by a
// fixed number of workers sharing one page provider. Each result carries
// a BLAKE2b-256 digest of the patched markup so identical outputs can be
// spotted across runs; the summary adds rewrite and latency statistics.
//
// Example Usage:
//
//	runner := batch.NewRunner(provider, 4, logger)
//	summary, err := runner.Run(ctx, batch.Job{
//		Root:     "captures",
//		OutDir:   "patched",
//		PageBase: "http://localhost:8080/replay/",
//		Archive:  &archive,
//	})
package batch
