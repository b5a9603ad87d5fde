// Package typeref provides the type identities the wirekit engine resolves.
//
// A Type is either a concrete Go type (Of[T], For) or a closed instance of
// an open generic Definition. Go cannot instantiate generic types at run
// time, so open generics are declared explicitly: a Definition names its
// type parameters, their constraints, and the bases it implements as type
// expressions over those parameters.
//
//	IRepo := typeref.NewInterface("IRepo", typeref.Param{Name: "T"})
//	Repo := typeref.NewClass("Repo", typeref.Param{Name: "T"}).
//	    Implements(IRepo.Apply(typeref.Ref("T")))
//
//	closed, ok := typeref.Close(Repo, IRepo.MustOf(typeref.Of[int]()))
//	// closed == Repo.MustOf(typeref.Of[int]())
//
// Closed instances are interned per definition, so equal instances compare
// equal with == and can be used as map keys.
package typeref
