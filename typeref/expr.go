package typeref

// Expr is a type expression over the parameters of a Definition.
type Expr interface {
	isExpr()
}

type paramExpr struct {
	name  string
	index int
}

type litExpr struct {
	t Type
}

type applyExpr struct {
	def  *Definition
	args []Expr
}

func (paramExpr) isExpr() {}
func (litExpr) isExpr()   {}
func (applyExpr) isExpr() {}

// Ref refers to a type parameter of the enclosing Definition by name.
func Ref(name string) Expr {
	return paramExpr{name: name, index: -1}
}

// Lit is a fixed type inside an expression.
func Lit(t Type) Expr {
	return litExpr{t: t}
}

// Apply builds the expression d[args...].
func (d *Definition) Apply(args ...Expr) Expr {
	if len(args) != len(d.params) {
		panic("typeref: " + d.name + ": wrong number of type arguments in Apply")
	}
	return applyExpr{def: d, args: append([]Expr(nil), args...)}
}

// eval substitutes args into a bound expression.
func eval(e Expr, args []Type) Type {
	switch e := e.(type) {
	case paramExpr:
		return args[e.index]
	case litExpr:
		return e.t
	case applyExpr:
		closed := make([]Type, len(e.args))
		for i, a := range e.args {
			closed[i] = eval(a, args)
		}
		return e.def.intern(closed)
	default:
		return Type{}
	}
}

// subst rewrites the parameter references of e (bound to some definition)
// with the expressions in with, producing an expression over another
// definition's parameters.
func subst(e Expr, with []Expr) Expr {
	switch e := e.(type) {
	case paramExpr:
		return with[e.index]
	case applyExpr:
		args := make([]Expr, len(e.args))
		for i, a := range e.args {
			args[i] = subst(a, with)
		}
		return applyExpr{def: e.def, args: args}
	default:
		return e
	}
}

// unify matches e against t, extending bindings. It reports false on any
// conflict; bindings may be partially written in that case.
func unify(e Expr, t Type, bindings []Type) bool {
	switch e := e.(type) {
	case paramExpr:
		if bindings[e.index].IsZero() {
			bindings[e.index] = t
			return true
		}
		return bindings[e.index] == t
	case litExpr:
		return e.t == t
	case applyExpr:
		if t.inst == nil || t.inst.def != e.def || len(t.inst.args) != len(e.args) {
			return false
		}
		for i, a := range e.args {
			if !unify(a, t.inst.args[i], bindings) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
