package converter

import (
	"path"
	"reflect"

	"benchrun/pkg/models"
)

// Describe builds the descriptor of T. Pointer-receiver methods are included,
// so Describe[Foo] and Describe[*Foo] describe the same benchmark type.
func Describe[T any]() models.TypeDescriptor {
	return DescribeType(reflect.TypeOf((*T)(nil)).Elem())
}

// DescribeType builds a descriptor from a live Go type.
func DescribeType(t reflect.Type) models.TypeDescriptor {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	desc := models.TypeDescriptor{
		Package: path.Base(t.PkgPath()),
		Name:    t.Name(),
		Type:    t,
	}
	if t.PkgPath() == "" {
		desc.Package = ""
	}

	if t.Kind() == reflect.Interface {
		desc.Abstract = true
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			desc.Methods = append(desc.Methods, describeFunc(m.Name, m.Type, 0))
		}
		return desc
	}

	// The pointer method set is a superset of the value method set.
	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		desc.Methods = append(desc.Methods, describeFunc(m.Name, m.Type, 1))
	}
	return desc
}

// DescribeModule builds a module from sample values of its candidate types,
// keeping the order they are given in.
func DescribeModule(modPath, version string, samples ...any) models.Module {
	mod := models.Module{Path: modPath, Version: version}
	for _, s := range samples {
		var t reflect.Type
		if rt, ok := s.(reflect.Type); ok {
			t = rt
		} else {
			t = reflect.TypeOf(s)
		}
		mod.Types = append(mod.Types, DescribeType(t))
	}
	return mod
}

// describeFunc renders the signature of fn, skipping the first skip inputs
// (the receiver for method values obtained from a concrete type).
func describeFunc(name string, fn reflect.Type, skip int) models.MethodDescriptor {
	md := models.MethodDescriptor{Name: name}
	for i := skip; i < fn.NumIn(); i++ {
		md.Params = append(md.Params, fn.In(i).String())
	}
	for i := 0; i < fn.NumOut(); i++ {
		md.Results = append(md.Results, fn.Out(i).String())
	}
	return md
}
