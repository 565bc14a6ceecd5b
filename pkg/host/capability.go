// Package host answers questions about the machine benchmarks run on.
package host

import (
	"os/exec"
	"sync"
)

// Capabilities reports what the current host can do.
type Capabilities interface {
	// SupportsDynamicSourceCompilation reports whether benchmark source text
	// obtained at run time can be compiled and executed here.
	SupportsDynamicSourceCompilation() bool
}

// Static is a fixed answer, used to force the capability on or off.
type Static bool

func (s Static) SupportsDynamicSourceCompilation() bool { return bool(s) }

// Detector probes the host for a Go toolchain. The probe runs once and is
// cached for the lifetime of the detector.
type Detector struct {
	// Override, when non-nil, replaces the probe result.
	Override *bool

	lookPath func(string) (string, error)
	once     sync.Once
	goPath   string
}

// NewDetector creates a detector that looks for the go command on PATH.
func NewDetector() *Detector {
	return &Detector{lookPath: exec.LookPath}
}

func (d *Detector) SupportsDynamicSourceCompilation() bool {
	if d.Override != nil {
		return *d.Override
	}
	return d.GoToolchain() != ""
}

// GoToolchain returns the path of the go command, or "" if there is none.
func (d *Detector) GoToolchain() string {
	d.once.Do(func() {
		lookPath := d.lookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		if p, err := lookPath("go"); err == nil {
			d.goPath = p
		}
	})
	return d.goPath
}
