package typeref

import "reflect"

// Constraint restricts the type arguments accepted by a Param.
type Constraint interface {
	Satisfied(arg Type) bool
	String() string
}

type constraintFunc struct {
	name string
	fn   func(Type) bool
}

func (c constraintFunc) Satisfied(arg Type) bool { return c.fn(arg) }
func (c constraintFunc) String() string          { return c.name }

var (
	// ReferenceType accepts pointer, map, slice, channel, function and
	// interface types, and interface or class definitions.
	ReferenceType Constraint = constraintFunc{"reference type", isReference}

	// ValueType accepts every type ReferenceType rejects.
	ValueType Constraint = constraintFunc{"value type", func(t Type) bool { return !t.IsZero() && !isReference(t) }}

	// DefaultConstructible accepts types with a usable zero value: every
	// non-interface Go type, and definitions not marked NoDefaultConstructor.
	DefaultConstructible Constraint = constraintFunc{"default constructible", func(t Type) bool {
		if t.rt != nil {
			return t.rt.Kind() != reflect.Interface
		}
		return t.inst != nil && t.inst.def.constructible
	}}

	// Comparable accepts types usable as map keys.
	Comparable Constraint = constraintFunc{"comparable", isComparable}
)

// BaseType accepts types assignable to base.
func BaseType(base Type) Constraint {
	return constraintFunc{"base type " + base.String(), func(t Type) bool { return t.AssignableTo(base) }}
}

func isReference(t Type) bool {
	if t.rt != nil {
		switch t.rt.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func,
			reflect.Interface, reflect.UnsafePointer:
			return true
		}
		return false
	}
	return t.inst != nil && t.inst.def.kind != KindStruct
}

func isComparable(t Type) bool {
	if t.rt != nil {
		return t.rt.Comparable()
	}
	if t.inst == nil {
		return false
	}
	if t.inst.def.kind != KindStruct {
		return true
	}
	for _, a := range t.inst.args {
		if !isComparable(a) {
			return false
		}
	}
	return true
}
