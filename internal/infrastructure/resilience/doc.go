/*
Package resilience provides circuit breakers for outbound calls.

A Breaker moves between three states:

	Closed --[Trip]--> Open --[Cooldown]--> Half-Open --[Probes successes]--> Closed
	                     ^                      |
	                     +------[failure]-------+

Use Do for a typed call, or Allow when the outcome is only known later:

	done, err := breaker.Allow()
	if err != nil {
		return err
	}
	resp, err := send()
	done(err == nil)

A Group keeps one breaker per key; the fetch client keys it by host.
*/
package resilience
