package resilience

import (
	"log/slog"
	"strings"
	"time"
)

// StateChangeFunc observes circuit breaker transitions for an operation.
type StateChangeFunc func(operation, from, to string)

// Policy is the retry and breaker behaviour shared by one family of operations.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	Breaker                 bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

type Config struct {
	// Policies are keyed by operation family: the part of the operation name before
	// the first dot, so "openai.analyze_text" uses Policies["openai"].
	Policies map[string]Policy
	// Default applies to families without an entry.
	Default Policy

	Logger        *slog.Logger
	OnStateChange StateChangeFunc
}

// ProviderPolicy governs calls to the language model. Retries back off in seconds.
func ProviderPolicy(maxAttempts int, breaker bool) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,

		Breaker:                 breaker,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// EventPolicy governs analysis event publishing: a single attempt, with a breaker
// that skips a broker that keeps failing.
func EventPolicy() Policy {
	return Policy{
		MaxAttempts: 1,

		Breaker:                 true,
		BreakerMinRequests:      3,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      10 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func defaultPolicy() Policy {
	return Policy{
		MaxAttempts:    1,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
		Multiplier:     2.0,

		Breaker:                 true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (p Policy) normalize() Policy {
	out := p
	def := defaultPolicy()

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = def.InitialBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.Multiplier < 1.0 {
		out.Multiplier = def.Multiplier
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}

func (c Config) normalize() Config {
	out := Config{
		Policies:      make(map[string]Policy, len(c.Policies)),
		Logger:        c.Logger,
		OnStateChange: c.OnStateChange,
	}
	if c.Default == (Policy{}) {
		out.Default = defaultPolicy()
	} else {
		out.Default = c.Default.normalize()
	}
	for family, policy := range c.Policies {
		out.Policies[strings.ToLower(strings.TrimSpace(family))] = policy.normalize()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

func (c Config) policyFor(operation string) Policy {
	if policy, ok := c.Policies[family(operation)]; ok {
		return policy
	}
	return c.Default
}

func family(operation string) string {
	name, _, _ := strings.Cut(operation, ".")
	return strings.ToLower(name)
}
