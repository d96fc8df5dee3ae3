// Package config provides 12-factor configuration for the virtual file system.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML or TOML file can be layered on top with LoadFile; keys
// present in the file win over the environment.
//
// Configuration Sections:
//   - VFS: root directory, lock sweeping, tar compression
//   - Index: in-memory search index settings
//   - Logging: log level and output format
//   - Metrics: prometheus collection toggle
//
// Example Usage:
//
//	cfg, err := config.LoadFile("vfs.toml")
//	if err != nil {
//		return err
//	}
//	fs, err := vfs.New(cfg.VFS.Root)
//
// Environment Variables:
//   - VFS_ROOT, VFS_CREATE_ROOT, VFS_LOCK_SWEEP, VFS_TAR_COMPRESSION
//   - VFS_INDEX_ENABLED, VFS_INDEX_MAX_FILE_SIZE, VFS_INDEX_TRIP_AFTER, VFS_INDEX_COOLDOWN
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ENABLED
package config
