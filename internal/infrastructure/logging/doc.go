// Package logging builds the zap loggers of the virtual file system.
//
// Two encodings are supported:
//   - Production: JSON lines for machine parsing
//   - Development: colored console output for humans
//
// The file system logs every mutation at Debug with the fields produced by
// Op, and cleanup failures that follow a successful mutation at Warn.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level})
//	if err != nil {
//		return err
//	}
//	fs, err := vfs.New(root, vfs.WithLogger(logger))
package logging
