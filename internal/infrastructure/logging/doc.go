// Package logging builds the zap loggers of the replaypatch binaries.
//
// Production logs are JSON, development logs are coloured console lines.
// Both go to stderr: patchpage prints the patched page on stdout.
//
// Binaries build one logger from the config section and hand *zap.Logger
// to components, which name themselves:
//
//	logger, err := logging.Build("patchd", cfg.Logging)
//	p := patcher.New(rw, patcher.WithLogger(logger.Logger))
package logging
