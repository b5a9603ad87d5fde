// Package errors provides the typed errors raised by the wirekit engine.
//
// Every failure carries a machine-readable ErrorCode and, for resolution
// failures, the dependency chain (ordered type + member frames) that led to
// it, so callers can pinpoint which constructor parameter or field could not
// be satisfied without inspecting engine internals.
//
//	_, err := scope.Resolve(ctx, typeref.Of[*Service]())
//	if errors.Is(err, errors.ErrCodeMissingDependency) {
//	    fmt.Println(errors.ChainOf(err))
//	}
package errors
