package vfs

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/search"
)

// Option configures a LocalFileSystem
type Option func(*LocalFileSystem)

// WithSearcher sets the index notified of content changes
func WithSearcher(s search.Searcher) Option {
	return func(fs *LocalFileSystem) {
		if s != nil {
			fs.searcher = s
		}
	}
}

// WithArchiverFactory sets the factory creating zip and tar archivers
func WithArchiverFactory(f archive.Factory) Option {
	return func(fs *LocalFileSystem) {
		if f != nil {
			fs.archivers = f
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(fs *LocalFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(fs *LocalFileSystem) { fs.metrics = m }
}

// WithClock sets the clock used for lock expiry
func WithClock(now func() time.Time) Option {
	return func(fs *LocalFileSystem) {
		if now != nil {
			fs.now = now
		}
	}
}

// WithCreateRoot creates the root directory when it is missing
func WithCreateRoot() Option {
	return func(fs *LocalFileSystem) { fs.createRoot = true }
}

// WithLockSweep purges expired locks in the background every interval
func WithLockSweep(interval time.Duration) Option {
	return func(fs *LocalFileSystem) { fs.sweepInterval = interval }
}

// TransferOption configures CopyTo and MoveTo
type TransferOption func(*transfer)

type transfer struct {
	name      string
	overwrite bool
	lockToken string
}

// WithName gives the copied or moved entry a new name
func WithName(name string) TransferOption {
	return func(t *transfer) { t.name = name }
}

// WithOverwrite replaces an entry occupying the destination
func WithOverwrite(overwrite bool) TransferOption {
	return func(t *transfer) { t.overwrite = overwrite }
}

// WithLockToken supplies the token of the locked entries being moved.
// Copies ignore it.
func WithLockToken(token string) TransferOption {
	return func(t *transfer) { t.lockToken = token }
}

func newTransfer(opts []TransferOption) transfer {
	var t transfer
	for _, opt := range opts {
		opt(&t)
	}
	return t
}
