package monitoring

import (
	"time"
)

// Timer measures one operation
type Timer struct {
	start   time.Time
	metrics *Metrics
	op      string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, op string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		op:      op,
	}
}

// Stop stops the timer and records the duration with a status derived
// from err
func (t *Timer) Stop(err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	t.metrics.RecordOperation(t.op, status, time.Since(t.start))
}
