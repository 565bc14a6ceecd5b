package converter

import "benchrun/pkg/models"

// RunnableTypes returns the module's exported, concrete types in declaration
// order. The module's own requirements are added to each type's.
func RunnableTypes(m models.Module) []models.TypeDescriptor {
	out := make([]models.TypeDescriptor, 0, len(m.Types))
	for _, t := range m.Types {
		if !t.Exported() || t.Abstract {
			continue
		}
		if len(m.Requires) > 0 {
			t.Requires = append(append([]models.ModuleRef(nil), m.Requires...), t.Requires...)
		}
		out = append(out, t)
	}
	return out
}

// Enumerator adapts RunnableTypes to an interface value.
type Enumerator struct{}

func (Enumerator) RunnableTypes(m models.Module) []models.TypeDescriptor {
	return RunnableTypes(m)
}
