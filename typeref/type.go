package typeref

import (
	"reflect"
	"strings"
)

// Type identifies a resolvable type. The zero Type is invalid.
type Type struct {
	rt   reflect.Type
	inst *instance
}

// instance is an interned closed instance of a Definition.
type instance struct {
	def  *Definition
	args []Type
}

// Of returns the Type for the Go type T. Interface types are preserved.
func Of[T any]() Type {
	return Type{rt: reflect.TypeFor[T]()}
}

// For returns the Type wrapping rt.
func For(rt reflect.Type) Type {
	return Type{rt: rt}
}

// IsZero reports whether t is the zero Type.
func (t Type) IsZero() bool {
	return t.rt == nil && t.inst == nil
}

// IsSymbolic reports whether t is a closed Definition instance rather than a Go type.
func (t Type) IsSymbolic() bool {
	return t.inst != nil
}

// Reflect returns the Go type, or nil for symbolic types.
func (t Type) Reflect() reflect.Type {
	return t.rt
}

// Definition returns the open definition t was closed from, or nil.
func (t Type) Definition() *Definition {
	if t.inst == nil {
		return nil
	}
	return t.inst.def
}

// Args returns a copy of the type arguments of a symbolic type.
func (t Type) Args() []Type {
	if t.inst == nil {
		return nil
	}
	out := make([]Type, len(t.inst.args))
	copy(out, t.inst.args)
	return out
}

// String returns a readable name such as "*app.Service" or "IRepo[int]".
func (t Type) String() string {
	switch {
	case t.rt != nil:
		return t.rt.String()
	case t.inst != nil:
		var b strings.Builder
		b.WriteString(t.inst.def.name)
		b.WriteByte('[')
		for i, a := range t.inst.args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.String())
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "<invalid>"
	}
}

// IsInterface reports whether t is a Go interface type or an instance of an
// interface Definition.
func (t Type) IsInterface() bool {
	if t.rt != nil {
		return t.rt.Kind() == reflect.Interface
	}
	return t.inst != nil && t.inst.def.kind == KindInterface
}

// bases returns the direct bases of a symbolic type with its arguments substituted.
func (t Type) bases() []Type {
	if t.inst == nil {
		return nil
	}
	out := make([]Type, 0, len(t.inst.def.bases))
	for _, e := range t.inst.def.bases {
		out = append(out, eval(e, t.inst.args))
	}
	return out
}

// AssignableTo reports whether a value of type t can be used where target is
// required: Go assignability for Go types, and transitive base lookup for
// symbolic types.
func (t Type) AssignableTo(target Type) bool {
	if t == target {
		return true
	}
	if t.IsZero() || target.IsZero() {
		return false
	}
	if t.rt != nil {
		return target.rt != nil && t.rt.AssignableTo(target.rt)
	}
	seen := map[Type]bool{}
	stack := t.bases()
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[b] {
			continue
		}
		seen[b] = true
		if b == target || (b.rt != nil && target.rt != nil && b.rt.AssignableTo(target.rt)) {
			return true
		}
		stack = append(stack, b.bases()...)
	}
	return false
}
