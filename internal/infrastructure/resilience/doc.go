/*
Package resilience provides a circuit breaker for calls to remote
dependencies such as the package registry.

# States

- Closed: calls pass through and failures are counted
- Open: calls fail fast with ErrCircuitOpen until Timeout elapses
- Half-Open: up to MaxRequests trial calls decide whether to close again

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[successes]-> Closed
	                          ^                     |
	                          +------[failure]------+

# Usage

	breaker := resilience.New("registry", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := fetch(ctx)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			return resilience.Permanent(ErrNotFound) // not the registry's fault
		}
		return nil
	})
*/
package resilience
