// Package resolution decides whether auxiliary modules required by a benchmark
// target can be satisfied by the modules available to the process.
//
// The active Policy is process-wide state on a Resolver. The default policy is
// Strict; a Guard swaps in Permissive for the duration of benchmark runs so
// that version skew between a target's declared requirements and the build's
// actual dependencies does not produce false negatives.
package resolution

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/mod/semver"

	"benchrun/pkg/models"
)

var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrVersionMismatch = errors.New("module version mismatch")
)

// Policy decides whether an available module version satisfies a request.
type Policy interface {
	Name() string
	Accept(requested, available string) bool
}

type strictPolicy struct{}

func (strictPolicy) Name() string { return "strict" }

func (strictPolicy) Accept(requested, available string) bool {
	return requested == "" || requested == available
}

type permissivePolicy struct{}

func (permissivePolicy) Name() string { return "permissive" }

// Accept ignores everything but the semver major version. Non-semver versions
// (pseudo "devel" builds and the like) are always accepted.
func (permissivePolicy) Accept(requested, available string) bool {
	if requested == "" || !semver.IsValid(requested) || !semver.IsValid(available) {
		return true
	}
	return semver.Major(requested) == semver.Major(available)
}

var (
	// Strict accepts only the exact requested version.
	Strict Policy = strictPolicy{}
	// Permissive accepts any version with the requested major version.
	Permissive Policy = permissivePolicy{}
)

// Resolver holds the active policy and the catalog of available modules.
type Resolver struct {
	mu      sync.RWMutex
	policy  Policy
	catalog map[string]string
}

// NewResolver creates a resolver with an empty catalog.
func NewResolver(policy Policy) *Resolver {
	if policy == nil {
		policy = Strict
	}
	return &Resolver{
		policy:  policy,
		catalog: make(map[string]string),
	}
}

// Default is the process-wide resolver, seeded with the dependencies recorded
// in the running binary's build info.
var Default = newDefaultResolver()

func newDefaultResolver() *Resolver {
	r := NewResolver(Strict)
	if info, ok := debug.ReadBuildInfo(); ok {
		r.Register(models.ModuleRef{Path: info.Main.Path, Version: info.Main.Version})
		for _, dep := range info.Deps {
			mod := dep
			if dep.Replace != nil {
				mod = dep.Replace
			}
			r.Register(models.ModuleRef{Path: dep.Path, Version: mod.Version})
		}
	}
	return r
}

// Policy returns the active policy.
func (r *Resolver) Policy() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// SetPolicy installs p and returns the previously active policy.
func (r *Resolver) SetPolicy(p Policy) Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.policy
	r.policy = p
	return prev
}

// Register makes modules available for resolution. A later registration of
// the same path replaces the earlier version.
func (r *Resolver) Register(refs ...models.ModuleRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range refs {
		if ref.Path == "" {
			continue
		}
		r.catalog[ref.Path] = ref.Version
	}
}

// Resolve returns the available module satisfying ref under the active policy.
func (r *Resolver) Resolve(ref models.ModuleRef) (models.ModuleRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available, ok := r.catalog[ref.Path]
	if !ok {
		return models.ModuleRef{}, fmt.Errorf("%w: %s", ErrModuleNotFound, ref)
	}
	if !r.policy.Accept(ref.Version, available) {
		return models.ModuleRef{}, fmt.Errorf("%w: %s requested, %s available (policy %s)",
			ErrVersionMismatch, ref, available, r.policy.Name())
	}
	return models.ModuleRef{Path: ref.Path, Version: available}, nil
}

// ResolveAll resolves every ref, stopping at the first failure.
func (r *Resolver) ResolveAll(refs []models.ModuleRef) ([]models.ModuleRef, error) {
	out := make([]models.ModuleRef, 0, len(refs))
	for _, ref := range refs {
		resolved, err := r.Resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
