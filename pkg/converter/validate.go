package converter

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"benchrun/pkg/models"
)

const (
	benchmarkPrefix = "Benchmark"
	setupHook       = "Setup"
	cleanupHook     = "Cleanup"
	testingBType    = "*testing.B"
)

// isBenchmarkName mirrors the go test rule: "Benchmark" alone, or followed by
// something that does not start with a lower-case letter.
func isBenchmarkName(name string) bool {
	if !strings.HasPrefix(name, benchmarkPrefix) {
		return false
	}
	if len(name) == len(benchmarkPrefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len(benchmarkPrefix):])
	return !unicode.IsLower(r)
}

func checkType(t models.TypeDescriptor) error {
	if t.Name == "" {
		return models.NewDeclarationError("<anonymous>", "", "benchmark types must be named")
	}
	if !t.Exported() {
		return models.NewDeclarationError(t.FullName(), "", "type is not exported")
	}
	if t.Abstract {
		return models.NewDeclarationError(t.FullName(), "", "type is an interface and cannot be instantiated")
	}
	return nil
}

func checkBenchmark(t models.TypeDescriptor, m models.MethodDescriptor) error {
	if !m.Exported() {
		return models.NewDeclarationError(t.FullName(), m.Name, "method is not exported")
	}
	paramsOK := len(m.Params) == 0 || (len(m.Params) == 1 && m.Params[0] == testingBType)
	if !paramsOK || len(m.Results) > 1 {
		return models.NewDeclarationError(t.FullName(), m.Name,
			fmt.Sprintf("has incorrect signature %s; want func(), func(*testing.B) or a single result", signature(m)))
	}
	return nil
}

func checkHook(t models.TypeDescriptor, name string) (string, error) {
	m, ok := t.Method(name)
	if !ok {
		return "", nil
	}
	if len(m.Params) != 0 || len(m.Results) != 0 {
		return "", models.NewDeclarationError(t.FullName(), m.Name,
			fmt.Sprintf("hook has incorrect signature %s; want func()", signature(m)))
	}
	return name, nil
}

func signature(m models.MethodDescriptor) string {
	s := "func(" + strings.Join(m.Params, ", ") + ")"
	switch len(m.Results) {
	case 0:
	case 1:
		s += " " + m.Results[0]
	default:
		s += " (" + strings.Join(m.Results, ", ") + ")"
	}
	return s
}

// matchesFilters reports whether a benchmark passes the glob filters. A
// pattern matches either the bare name or "Target.Name". No filters means
// everything matches.
func matchesFilters(filters []string, target, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if ok, _ := path.Match(f, name); ok {
			return true
		}
		if ok, _ := path.Match(f, target+"."+name); ok {
			return true
		}
	}
	return false
}
