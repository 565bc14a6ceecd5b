package models

import (
	"reflect"
	"strings"

	"github.com/google/uuid"

	"benchrun/pkg/runconfig"
)

// ModuleRef names an auxiliary module a benchmark target needs at run time.
type ModuleRef struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

func (m ModuleRef) String() string {
	if m.Version == "" {
		return m.Path
	}
	return m.Path + "@" + m.Version
}

// MethodDescriptor describes one method of a candidate benchmark type.
// Params and Results hold type strings as they would be written in Go source.
type MethodDescriptor struct {
	Name    string   `json:"name"`
	Params  []string `json:"params,omitempty"`
	Results []string `json:"results,omitempty"`
}

// Exported reports whether the method name starts with an upper-case letter.
func (m MethodDescriptor) Exported() bool {
	return isExported(m.Name)
}

// TypeDescriptor describes a candidate benchmark type.
// Type is set when the descriptor was built from a live Go type and is what the
// in-process runner instantiates.
type TypeDescriptor struct {
	Package  string             `json:"package"`
	Name     string             `json:"name"`
	Abstract bool               `json:"abstract,omitempty"` // interfaces cannot be instantiated
	Methods  []MethodDescriptor `json:"methods,omitempty"`
	Requires []ModuleRef        `json:"requires,omitempty"`

	Type reflect.Type `json:"-"`
}

// FullName returns "package.Name", or just Name when the package is unknown.
func (t TypeDescriptor) FullName() string {
	if t.Package == "" {
		return t.Name
	}
	return t.Package + "." + t.Name
}

// Exported reports whether the type name is exported.
func (t TypeDescriptor) Exported() bool {
	return isExported(t.Name)
}

// Method looks up a method by name.
func (t TypeDescriptor) Method(name string) (MethodDescriptor, bool) {
	for _, m := range t.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDescriptor{}, false
}

// Module is a unit of candidate benchmark types, the Go counterpart of a
// compiled binary module. Types are kept in declaration order.
type Module struct {
	Path     string           `json:"path"`
	Version  string           `json:"version"`
	Requires []ModuleRef      `json:"requires,omitempty"`
	Types    []TypeDescriptor `json:"types"`
}

// SourceUnit carries benchmark source text that must be compiled before it runs.
type SourceUnit struct {
	Origin string `json:"origin"` // URL the text was fetched from, or "inline"
	Text   string `json:"text"`
}

// Benchmark is a single method or function selected for execution.
type Benchmark struct {
	Name   string `json:"name"`   // method or function name
	Target string `json:"target"` // full name of the owning type or source package
	TakesB bool   `json:"takes_b"`
}

// FullName returns "Target.Name".
func (b Benchmark) FullName() string {
	return b.Target + "." + b.Name
}

// RunDescriptor identifies one benchmark unit to execute: a target, the
// benchmarks selected on it and the resolved configuration.
type RunDescriptor struct {
	ID         uuid.UUID         `json:"id"`
	Type       TypeDescriptor    `json:"type"`
	Benchmarks []Benchmark       `json:"benchmarks"`
	Source     *SourceUnit       `json:"source,omitempty"`
	Config     *runconfig.Config `json:"-"`

	// Setup and Cleanup name optional per-benchmark hooks on Type.
	Setup   string `json:"setup,omitempty"`
	Cleanup string `json:"cleanup,omitempty"`
}

// Title is the human readable name used for the resulting summary.
func (d RunDescriptor) Title() string {
	return d.Type.FullName()
}

func isExported(name string) bool {
	if name == "" {
		return false
	}
	first := name[:1]
	return strings.ToUpper(first) == first && strings.ToLower(first) != first
}
