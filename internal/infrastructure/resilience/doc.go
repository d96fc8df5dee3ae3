/*
Package resilience provides a circuit breaker for optional dependencies.

The file system uses it to stop feeding a failing search index: after
TripAfter consecutive failures the breaker opens and calls are skipped
until Cooldown has passed. Then one trial call is let through; success
closes the breaker, failure reopens it.

# Usage

	breaker := resilience.New("index", resilience.Settings{
		TripAfter: 5,
		Cooldown:  30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Breaker state changed", zap.String("breaker", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	err := breaker.Do(func() error {
		return index.Update(entry)
	})

# States

	Closed --[TripAfter failures]-> Open --[Cooldown]-> Half-Open --[success]-> Closed
	                                                       |
	                                                   [failure]
	                                                       v
	                                                      Open
*/
package resilience
