package di

import (
	"reflect"
	"slices"

	"github.com/kbukum/wirekit/typeref"
)

// paramSpec holds the overrides for one constructor parameter or field.
type paramSpec struct {
	value      reflect.Value
	hasValue   bool
	typ        typeref.Type
	key        any
	optional   bool
	def        reflect.Value
	hasDefault bool
	filter     *Filter
}

// ParamOption overrides how a parameter or field is satisfied.
type ParamOption func(*paramSpec)

// ParamValue injects v instead of resolving.
func ParamValue(v any) ParamOption {
	return func(p *paramSpec) {
		p.value = reflect.ValueOf(v)
		p.hasValue = true
	}
}

// ParamType resolves t instead of the declared parameter type. The
// resolved value must be assignable to the parameter.
func ParamType(t typeref.Type) ParamOption {
	return func(p *paramSpec) { p.typ = t }
}

// ParamKey resolves the parameter with a key.
func ParamKey(key any) ParamOption {
	return func(p *paramSpec) { p.key = key }
}

// Optional injects the zero value when nothing can satisfy the parameter.
func Optional() ParamOption {
	return func(p *paramSpec) { p.optional = true }
}

// ParamDefault injects v when nothing can satisfy the parameter.
func ParamDefault(v any) ParamOption {
	return func(p *paramSpec) {
		p.def = reflect.ValueOf(v)
		p.hasDefault = true
		p.optional = true
	}
}

// ParamFilter restricts the candidates for the parameter.
func ParamFilter(f *Filter) ParamOption {
	return func(p *paramSpec) { p.filter = f }
}

func newParamSpec(opts []ParamOption) paramSpec {
	var p paramSpec
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Metadata is an ordered set of key/value pairs attached to an export.
type Metadata struct {
	keys   []string
	values map[string]any
}

func (m Metadata) with(key string, value any) Metadata {
	out := Metadata{keys: slices.Clone(m.keys), values: make(map[string]any, len(m.values)+1)}
	for k, v := range m.values {
		out.values[k] = v
	}
	if _, ok := out.values[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string { return slices.Clone(m.keys) }

// Len returns the number of entries.
func (m Metadata) Len() int { return len(m.keys) }

// Filter restricts candidate exports. Filters are compared by pointer, so
// reuse one value to share compiled plans.
type Filter struct {
	Name  string
	Match func(*Export) bool
}

// NewFilter creates a named filter.
func NewFilter(name string, match func(*Export) bool) *Filter {
	return &Filter{Name: name, Match: match}
}

// MetadataFilter matches exports whose metadata holds key with value.
func MetadataFilter(key string, value any) *Filter {
	return NewFilter("metadata:"+key, func(e *Export) bool {
		v, ok := e.Metadata().Get(key)
		return ok && v == value
	})
}

func (f *Filter) allows(e *Export) bool {
	return f == nil || f.Match == nil || f.Match(e)
}

// Request describes the dependency being planned when conditions run.
type Request struct {
	Type   typeref.Type
	Key    any
	Parent typeref.Type
	Member string
}

// Condition decides at planning time whether an export may serve a request.
type Condition func(Request) bool

// WhenInjectedInto holds when the dependency is injected into one of types.
func WhenInjectedInto(types ...typeref.Type) Condition {
	return func(r Request) bool {
		return slices.Contains(types, r.Parent)
	}
}

// WhenKeyed holds when the request carries one of keys.
func WhenKeyed(keys ...any) Condition {
	return func(r Request) bool {
		for _, k := range keys {
			if r.Key == k {
				return true
			}
		}
		return false
	}
}

// WhenRequestedDirectly holds for top-level resolution requests.
func WhenRequestedDirectly() Condition {
	return func(r Request) bool { return r.Parent.IsZero() }
}

func (e *Export) admits(r Request) bool {
	for _, c := range e.conditions {
		if !c(r) {
			return false
		}
	}
	return true
}
