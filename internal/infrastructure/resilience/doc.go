/*
Package resilience provides the circuit breakers that guard outbound fetches.

A Breaker moves between three states:

	Closed --[Trip policy]--> Open --[Cooldown]--> Half-Open --[Probes succeed]--> Closed
	                                                  |
	                                              [failure]
	                                                  v
	                                                 Open

Counts reset every Window while closed and on every transition. Trip
policies compose with AnyOf:

	trip := resilience.AnyOf(
		resilience.ConsecutiveFailures(10),
		resilience.FailureRatio(20, 0.7),
	)

A Group keys breakers by upstream host, so one unreachable host referenced
from an archived page fails fast without blocking requests to the others:

	hosts := resilience.NewGroup("fetch", resilience.Settings{Trip: trip})
	resp, err := resilience.Do(hosts.Get(u.Host), func() (*Response, error) {
		return send(req)
	})

OnStateChange runs with the breaker locked and must not call back into it.
*/
package resilience
