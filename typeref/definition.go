package typeref

import (
	"fmt"
	"sync"

	"github.com/kbukum/wirekit/errors"
)

// Kind classifies a Definition for constraint checks.
type Kind int

const (
	// KindInterface is an abstract contract; never default-constructible.
	KindInterface Kind = iota
	// KindClass is a reference type, like a pointer to a Go struct.
	KindClass
	// KindStruct is a value type.
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindClass:
		return "class"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Param declares one type parameter of a Definition.
type Param struct {
	Name        string
	Constraints []Constraint
}

// Definition is an open generic type declaration.
type Definition struct {
	name          string
	kind          Kind
	params        []Param
	bases         []Expr
	constructible bool

	mu   sync.Mutex
	root trieNode
}

type trieNode struct {
	next map[Type]*trieNode
	inst *instance
}

// NewInterface declares an open generic interface.
func NewInterface(name string, params ...Param) *Definition {
	return newDefinition(name, KindInterface, params)
}

// NewClass declares an open generic reference type. Classes are
// default-constructible unless marked otherwise.
func NewClass(name string, params ...Param) *Definition {
	d := newDefinition(name, KindClass, params)
	d.constructible = true
	return d
}

// NewStruct declares an open generic value type.
func NewStruct(name string, params ...Param) *Definition {
	d := newDefinition(name, KindStruct, params)
	d.constructible = true
	return d
}

func newDefinition(name string, kind Kind, params []Param) *Definition {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" || seen[p.Name] {
			panic(fmt.Sprintf("typeref: %s: invalid or duplicate type parameter %q", name, p.Name))
		}
		seen[p.Name] = true
	}
	return &Definition{name: name, kind: kind, params: append([]Param(nil), params...)}
}

// Name returns the declared name.
func (d *Definition) Name() string { return d.name }

// Kind returns the declared kind.
func (d *Definition) Kind() Kind { return d.kind }

// Params returns the declared type parameters.
func (d *Definition) Params() []Param { return append([]Param(nil), d.params...) }

// NoDefaultConstructor marks a class as lacking a usable zero value.
func (d *Definition) NoDefaultConstructor() *Definition {
	d.constructible = false
	return d
}

// Implements declares bases of d. Parameter references are resolved against
// d's own parameters; it panics on an unknown name. Call it during setup,
// before the definition is shared.
func (d *Definition) Implements(bases ...Expr) *Definition {
	for _, b := range bases {
		d.bases = append(d.bases, d.bind(b))
	}
	return d
}

func (d *Definition) bind(e Expr) Expr {
	switch e := e.(type) {
	case paramExpr:
		for i, p := range d.params {
			if p.Name == e.name {
				return paramExpr{name: e.name, index: i}
			}
		}
		panic(fmt.Sprintf("typeref: %s: unknown type parameter %q", d.name, e.name))
	case applyExpr:
		args := make([]Expr, len(e.args))
		for i, a := range e.args {
			args[i] = d.bind(a)
		}
		return applyExpr{def: e.def, args: args}
	default:
		return e
	}
}

// Of closes d with args, checking arity and every parameter constraint.
func (d *Definition) Of(args ...Type) (Type, error) {
	if len(args) != len(d.params) {
		return Type{}, errors.InvalidExport(
			fmt.Sprintf("%s expects %d type argument(s), got %d", d.name, len(d.params), len(args)))
	}
	for i, a := range args {
		if a.IsZero() {
			return Type{}, errors.InvalidExport(fmt.Sprintf("%s: type argument %d is invalid", d.name, i))
		}
	}
	if err := d.checkConstraints(args); err != nil {
		return Type{}, err
	}
	return d.intern(args), nil
}

// MustOf is like Of but panics on error.
func (d *Definition) MustOf(args ...Type) Type {
	t, err := d.Of(args...)
	if err != nil {
		panic(err)
	}
	return t
}

func (d *Definition) checkConstraints(args []Type) error {
	for i, p := range d.params {
		for _, c := range p.Constraints {
			if !c.Satisfied(args[i]) {
				return errors.GenericConstraintUnsatisfied(d.name+"."+p.Name, c.String(), args[i].String())
			}
		}
	}
	return nil
}

// intern returns the unique instance of d for args without checking constraints.
func (d *Definition) intern(args []Type) Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := &d.root
	for _, a := range args {
		if n.next == nil {
			n.next = make(map[Type]*trieNode)
		}
		child, ok := n.next[a]
		if !ok {
			child = &trieNode{}
			n.next[a] = child
		}
		n = child
	}
	if n.inst == nil {
		n.inst = &instance{def: d, args: append([]Type(nil), args...)}
	}
	return Type{inst: n.inst}
}

// String returns the open form, e.g. "Repo[T]".
func (d *Definition) String() string {
	s := d.name + "["
	for i, p := range d.params {
		if i > 0 {
			s += ","
		}
		s += p.Name
	}
	return s + "]"
}
