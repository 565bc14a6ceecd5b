// Package resilience protects calls to remote source hosts with per-host
// circuit breakers, so one unreachable host fails fast instead of stalling
// every run that references it.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker for a host is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of a breaker
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing again
	Cooldown time.Duration
	// MaxProbes is the number of calls allowed through while half-open
	MaxProbes int
}

// DefaultConfig returns the defaults used for source fetches
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        3,
	}
}

// Breaker implements the circuit breaker pattern for one host
type Breaker struct {
	name   string
	config Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
}

// NewBreaker creates a breaker with the given name and config
func NewBreaker(name string, config Config) *Breaker {
	return &Breaker{
		name:   name,
		config: config,
		state:  Closed,
	}
}

// State returns the current state of the breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState reports Open as HalfOpen once the cooldown elapsed (must hold lock)
func (b *Breaker) currentState() State {
	if b.state == Open && time.Since(b.lastFailure) >= b.config.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn unless the breaker is open or ctx is already done
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case Open:
		return ErrCircuitOpen
	case HalfOpen:
		if b.state == Open {
			b.state = HalfOpen
			b.probes = 0
			b.successes = 0
		}
		if b.probes >= b.config.MaxProbes {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		b.lastFailure = time.Now()
		// Any failure while half-open reopens immediately
		if b.state == HalfOpen || b.failures >= b.config.FailureThreshold {
			b.state = Open
			b.probes = 0
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.probes = 0
		}
	}
}

// Reset closes the breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

// Snapshot returns the breaker's counters for health reporting
func (b *Breaker) Snapshot() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"name":        b.name,
		"state":       b.currentState().String(),
		"failures":    b.failures,
		"lastFailure": b.lastFailure,
	}
}

// HostBreakers lazily creates one breaker per host.
type HostBreakers struct {
	config Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewHostBreakers creates an empty registry using config for every host.
func NewHostBreakers(config Config) *HostBreakers {
	return &HostBreakers{config: config, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for host, creating it on first use.
func (h *HostBreakers) For(host string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[host]
	if !ok {
		b = NewBreaker(host, h.config)
		h.breakers[host] = b
	}
	return b
}

// Execute runs fn through the breaker for host.
func (h *HostBreakers) Execute(ctx context.Context, host string, fn func() error) error {
	return h.For(host).Execute(ctx, fn)
}

// Snapshot reports every known breaker.
func (h *HostBreakers) Snapshot() []map[string]interface{} {
	h.mu.Lock()
	hosts := make([]*Breaker, 0, len(h.breakers))
	for _, b := range h.breakers {
		hosts = append(hosts, b)
	}
	h.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(hosts))
	for _, b := range hosts {
		out = append(out, b.Snapshot())
	}
	return out
}
