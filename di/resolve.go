package di

import (
	"context"
	"fmt"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/typeref"
)

// Resolve resolves T with type safety, returns error on failure.
//
// Example:
//
//	repo, err := di.Resolve[contracts.Repository](ctx, scope)
//	if err != nil {
//	    return fmt.Errorf("failed to get repository: %w", err)
//	}
func Resolve[T any](ctx context.Context, c Container, opts ...ResolveOption) (T, error) {
	var zero T
	instance, err := c.Resolve(ctx, typeref.Of[T](), opts...)
	if err != nil {
		return zero, err
	}
	return cast[T](instance)
}

// ResolveKeyed resolves the export of T registered under key.
func ResolveKeyed[T any](ctx context.Context, c Container, key any, opts ...ResolveOption) (T, error) {
	return Resolve[T](ctx, c, append(opts, ByKey(key))...)
}

// MustResolve resolves T, panics on error.
// Use this during wiring when a missing dependency is a programming error.
func MustResolve[T any](ctx context.Context, c Container, opts ...ResolveOption) T {
	v, err := Resolve[T](ctx, c, opts...)
	if err != nil {
		panic(fmt.Sprintf("di: failed to resolve %s: %v", typeref.Of[T](), err))
	}
	return v
}

// TryResolve resolves T, returns the zero value and false if it cannot be
// resolved. Use this when a dependency is optional.
//
// Example:
//
//	if metrics, ok := di.TryResolve[MetricsClient](ctx, scope); ok {
//	    metrics.RecordEvent(...)
//	}
func TryResolve[T any](ctx context.Context, c Container, opts ...ResolveOption) (T, bool) {
	v, err := Resolve[T](ctx, c, opts...)
	if err != nil {
		return v, false
	}
	return v, true
}

// ResolveAll resolves every export of T in resolution order.
func ResolveAll[T any](ctx context.Context, c Container, opts ...ResolveOption) ([]T, error) {
	items, err := c.ResolveAll(ctx, typeref.Of[T](), opts...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := cast[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ResolveType resolves typ and asserts the result to T. It is the way to
// resolve symbolic generic types into a Go interface.
func ResolveType[T any](ctx context.Context, c Container, typ typeref.Type, opts ...ResolveOption) (T, error) {
	instance, err := c.Resolve(ctx, typ, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](instance)
}

// Track hands v to c for disposal and returns it typed, so construction
// and tracking can be chained:
//
//	conn, err := di.Track(scope, openConn(), nil)
func Track[T any](c Container, v T, cleanup func() error) (T, error) {
	_, err := c.Track(v, cleanup)
	return v, err
}

func cast[T any](instance any) (T, error) {
	if instance == nil {
		var zero T
		return zero, nil
	}
	v, ok := instance.(T)
	if !ok {
		return v, errors.New(errors.ErrCodeConstructionFailed,
			fmt.Sprintf("di: component is %T, expected %s", instance, typeref.Of[T]()))
	}
	return v, nil
}
