/*
Package monitoring provides Prometheus metrics for file system operations.

# Overview

Metrics are registered on a private registry owned by each Metrics value, so
several file systems (and tests) can live in one process without colliding
on the default registerer.

# Metrics

- vfs_operations_total{op,status}: every VirtualFile mutation and read
- vfs_operation_duration_seconds{op}: latency of the same operations
- vfs_locks_active: locks currently held through this process
- vfs_lock_conflicts_total: lock attempts rejected because a live lock exists
- vfs_archive_operations_total{format,direction}: compress/extract calls

# Usage

	metrics := monitoring.NewMetrics()
	fs, err := vfs.New(root, vfs.WithMetrics(metrics))

	timer := monitoring.NewTimer(metrics, "copy")
	// ... perform operation ...
	timer.Stop(err)

	families, _ := metrics.Registry().Gather()

A nil *Metrics is valid and records nothing.
*/
package monitoring
