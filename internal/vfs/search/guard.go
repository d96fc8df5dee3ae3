package search

import (
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/resilience"
)

// ErrSkipped is returned while a guarded searcher is not being called
var ErrSkipped = errors.New("index unavailable")

// Guard protects the file system from a failing Searcher. After repeated
// failures changes are dropped until the breaker lets a trial through.
type Guard struct {
	next    Searcher
	breaker *resilience.Breaker
}

// NewGuard wraps next with a breaker built from settings
func NewGuard(next Searcher, settings resilience.Settings, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("Index breaker state changed",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		if notify != nil {
			notify(name, from, to)
		}
	}
	return &Guard{next: next, breaker: resilience.New("index", settings)}
}

func (g *Guard) Add(e Entry) error {
	return g.do(func() error { return g.next.Add(e) })
}

func (g *Guard) Update(e Entry) error {
	return g.do(func() error { return g.next.Update(e) })
}

func (g *Guard) Delete(path string, isFile bool) error {
	return g.do(func() error { return g.next.Delete(path, isFile) })
}

// State reports the breaker state
func (g *Guard) State() resilience.State {
	return g.breaker.State()
}

func (g *Guard) do(fn func() error) error {
	err := g.breaker.Do(fn)
	if errors.Is(err, resilience.ErrOpen) {
		return ErrSkipped
	}
	return err
}
