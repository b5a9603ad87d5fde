// Package di is the resolution engine: it turns registered exports into
// object graphs.
//
// Exports are registered on a Scope. Each request for a type is planned
// once against the scope's registrations, compiled into a function and
// cached, so repeated resolutions only run the compiled function.
//
// # Registration
//
//	scope, err := di.New(config.Default())
//	err = scope.Register(
//	    di.Constructor(NewRepository, di.As(typeref.Of[Repository]()), di.WithLifestyle(di.Singleton)),
//	    di.Constructor(NewService),
//	)
//
// # Resolution
//
//	svc, err := di.Resolve[*Service](ctx, scope)
//
// Constructors may also take Lazy[T], Owned[T], Meta[T], Keyed[T],
// Scoped[T], func() T, func() (T, error) and []T parameters, as well as
// context.Context, *Scope, *InjectionContext and ServiceKey.
//
// # Scopes and disposal
//
// BeginScope creates a child scope. Instances that implement io.Closer are
// closed when the scope that owns them is closed, newest first.
//
// # Open generics
//
// Generic families that are resolved at run time are described with
// typeref.Definition. OpenGeneric registers a closing function that returns
// the constructor for each closed instance.
package di
