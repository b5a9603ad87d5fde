package typeref

// Close infers the type arguments of the open definition def so that the
// closed instance is assignable to requested. It walks requested against
// def itself and then against every transitive base of def, so the
// implementation may fix some parameters and may order its parameters
// differently from its bases.
//
// A candidate that cannot be inferred or violates a constraint is not an
// error: Close reports false.
func Close(def *Definition, requested Type) (Type, bool) {
	t, violated := closeDef(def, requested)
	if violated != nil {
		return Type{}, false
	}
	return t, !t.IsZero()
}

// CloseStrict is like Close but returns a GENERIC_CONSTRAINT_UNSATISFIED
// error when the arguments could be inferred and a constraint rejected them.
// A plain mismatch still yields the zero Type and a nil error.
func CloseStrict(def *Definition, requested Type) (Type, error) {
	t, violated := closeDef(def, requested)
	return t, violated
}

func closeDef(def *Definition, requested Type) (Type, error) {
	self := make([]Expr, len(def.params))
	for i, p := range def.params {
		self[i] = paramExpr{name: p.Name, index: i}
	}

	var firstViolation error
	seen := make(map[*Definition]int)
	queue := []Expr{applyExpr{def: def, args: self}}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		bindings := make([]Type, len(def.params))
		if unify(e, requested, bindings) && complete(bindings) {
			err := def.checkConstraints(bindings)
			if err == nil {
				return def.intern(bindings), nil
			}
			if firstViolation == nil {
				firstViolation = err
			}
		}

		// Expand the bases of applied definitions, rewritten over def's parameters.
		if a, ok := e.(applyExpr); ok {
			if seen[a.def] > len(a.def.bases)+1 {
				continue
			}
			seen[a.def]++
			for _, b := range a.def.bases {
				queue = append(queue, subst(b, a.args))
			}
		}
	}
	return Type{}, firstViolation
}

func complete(bindings []Type) bool {
	for _, b := range bindings {
		if b.IsZero() {
			return false
		}
	}
	return true
}
