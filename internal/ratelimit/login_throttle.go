package ratelimit

import "time"

// LoginThrottle is a brute-force defense for the do-auth endpoint: each
// login attempt consumes one token from a per-identifier bucket, keyed by
// whatever the caller considers the attempt's identity (the claimed user
// name, the client IP, or a combination of both). It is a thin,
// domain-named wrapper over Registry/Limiter so authproto callers don't
// need to know about RPM/TPM vocabulary that doesn't apply to login
// attempts.
type LoginThrottle struct {
	registry *Registry
	limit    int64
}

// NewLoginThrottle returns a throttle allowing attemptsPerMinute login
// attempts per identifier. attemptsPerMinute <= 0 disables throttling.
func NewLoginThrottle(attemptsPerMinute int64) *LoginThrottle {
	return &LoginThrottle{registry: NewRegistry(), limit: attemptsPerMinute}
}

// Allow consumes one attempt for identifier and reports whether the
// attempt may proceed.
func (t *LoginThrottle) Allow(identifier string) bool {
	if t.limit <= 0 {
		return true
	}
	limiter := t.registry.GetOrCreate(identifier, Limits{RPM: t.limit})
	return limiter.AllowRPM().Allowed
}

// EvictStale drops throttle state for identifiers not seen since cutoff,
// bounding the registry's memory to recently-active identifiers.
func (t *LoginThrottle) EvictStale(cutoff time.Time) int {
	return t.registry.EvictStale(cutoff)
}
