package resolution

import (
	"sync"

	"go.uber.org/zap"

	"benchrun/pkg/logger"
	"benchrun/pkg/metrics"
)

// Guard installs a policy on a Resolver for as long as at least one Token is
// outstanding. Acquisitions are reference counted, so overlapping calls on
// different goroutines share one installation and the prior policy is restored
// only when the last holder releases.
type Guard struct {
	resolver *Resolver
	install  Policy

	mu      sync.Mutex
	holders int
	prior   Policy
}

// NewGuard creates a guard that installs policy on r while held.
func NewGuard(r *Resolver, policy Policy) *Guard {
	return &Guard{resolver: r, install: policy}
}

// DefaultGuard installs Permissive on the Default resolver.
var DefaultGuard = NewGuard(Default, Permissive)

// Token is one outstanding acquisition of a Guard.
type Token struct {
	guard *Guard
	once  sync.Once
}

// Acquire installs the guard's policy if this is the first holder and returns
// a token that must be released exactly once.
func (g *Guard) Acquire() *Token {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holders == 0 {
		g.prior = g.resolver.SetPolicy(g.install)
	}
	g.holders++
	metrics.ResolutionGuardHolders.Inc()

	return &Token{guard: g}
}

// Release gives the acquisition back. Calling it more than once is a no-op.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.guard.release)
}

func (g *Guard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holders == 0 {
		logger.Warn("resolution guard released without a matching acquire",
			zap.String("policy", g.install.Name()))
		return
	}

	g.holders--
	metrics.ResolutionGuardHolders.Dec()
	if g.holders == 0 {
		g.resolver.SetPolicy(g.prior)
		g.prior = nil
	}
}

// Holders returns the number of outstanding tokens.
func (g *Guard) Holders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders
}

// Resolver returns the resolver the guard operates on.
func (g *Guard) Resolver() *Resolver {
	return g.resolver
}
