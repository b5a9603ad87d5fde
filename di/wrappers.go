package di

import (
	"reflect"
	"sync"

	"github.com/kbukum/wirekit/disposal"
	"github.com/kbukum/wirekit/errors"
)

type wrapperKind int

const (
	wrapLazy wrapperKind = iota
	wrapOwned
	wrapMeta
	wrapKeyed
	wrapScoped
)

// shape is implemented by the zero value of every built-in wrapper type.
type shape interface {
	wrapperKind() wrapperKind
	innerType() reflect.Type
	build(p wrapperParts) reflect.Value
}

type wrapperParts struct {
	value    reflect.Value
	resolve  func() (reflect.Value, error)
	owned    *disposal.Scope
	scope    *Scope
	metadata Metadata
	key      any
}

func shapeOf(rt reflect.Type) (shape, bool) {
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, false
	}
	s, ok := reflect.Zero(rt).Interface().(shape)
	return s, ok
}

// factoryShape reports whether rt is func() T or func() (T, error).
func factoryShape(rt reflect.Type) (inner reflect.Type, withErr, ok bool) {
	if rt == nil || rt.Kind() != reflect.Func || rt.NumIn() != 0 || rt.IsVariadic() {
		return nil, false, false
	}
	switch {
	case rt.NumOut() == 1:
		return rt.Out(0), false, true
	case rt.NumOut() == 2 && rt.Out(1) == errorType:
		return rt.Out(0), true, true
	}
	return nil, false, false
}

func valueAs[T any](v reflect.Value) T {
	var zero T
	if !v.IsValid() {
		return zero
	}
	t, _ := v.Interface().(T)
	return t
}

// ServiceKey is injected into constructors that declare it, carrying the
// key the export is being resolved with. It is the way any-key exports
// learn which key was asked for.
type ServiceKey struct {
	Value any
}

// Lazy defers resolving T until Value is first called. The result is kept.
type Lazy[T any] struct {
	state *lazyState
}

type lazyState struct {
	mu      sync.Mutex
	done    bool
	v       reflect.Value
	resolve func() (reflect.Value, error)
}

// Value resolves T on first use. A failed resolution is retried on the
// next call.
func (l Lazy[T]) Value() (T, error) {
	if l.state == nil {
		var zero T
		return zero, errors.New(errors.ErrCodeMissingDependency, "lazy value was not injected")
	}
	st := l.state
	st.mu.Lock()
	if st.done {
		v := st.v
		st.mu.Unlock()
		return valueAs[T](v), nil
	}
	resolve := st.resolve
	st.mu.Unlock()

	v, err := resolve()
	if err != nil {
		var zero T
		return zero, err
	}
	st.mu.Lock()
	if !st.done {
		st.v, st.done, st.resolve = v, true, nil
	}
	v = st.v
	st.mu.Unlock()
	return valueAs[T](v), nil
}

// MustValue is Value that panics on error.
func (l Lazy[T]) MustValue() T {
	v, err := l.Value()
	if err != nil {
		panic(err)
	}
	return v
}

func (Lazy[T]) wrapperKind() wrapperKind { return wrapLazy }
func (Lazy[T]) innerType() reflect.Type  { return reflect.TypeFor[T]() }

func (Lazy[T]) build(p wrapperParts) reflect.Value {
	return reflect.ValueOf(Lazy[T]{state: &lazyState{resolve: p.resolve}})
}

// Owned is T together with the disposables created for it. The caller
// owns them; Close disposes them.
type Owned[T any] struct {
	value T
	owned *disposal.Scope
}

// Value returns the owned instance.
func (o Owned[T]) Value() T { return o.value }

// Close disposes the instance and its transient dependencies.
func (o Owned[T]) Close() error {
	if o.owned == nil {
		return nil
	}
	return o.owned.Close()
}

func (Owned[T]) wrapperKind() wrapperKind { return wrapOwned }
func (Owned[T]) innerType() reflect.Type  { return reflect.TypeFor[T]() }

func (Owned[T]) build(p wrapperParts) reflect.Value {
	return reflect.ValueOf(Owned[T]{value: valueAs[T](p.value), owned: p.owned})
}

// Meta is T with the metadata of the export that produced it.
type Meta[T any] struct {
	Value    T
	Metadata Metadata
}

func (Meta[T]) wrapperKind() wrapperKind { return wrapMeta }
func (Meta[T]) innerType() reflect.Type  { return reflect.TypeFor[T]() }

func (Meta[T]) build(p wrapperParts) reflect.Value {
	return reflect.ValueOf(Meta[T]{Value: valueAs[T](p.value), Metadata: p.metadata})
}

// Keyed is T with the key of the export that produced it.
type Keyed[T any] struct {
	Key   any
	Value T
}

func (Keyed[T]) wrapperKind() wrapperKind { return wrapKeyed }
func (Keyed[T]) innerType() reflect.Type  { return reflect.TypeFor[T]() }

func (Keyed[T]) build(p wrapperParts) reflect.Value {
	return reflect.ValueOf(Keyed[T]{Key: p.key, Value: valueAs[T](p.value)})
}

// Scoped is T resolved inside a fresh child scope. Close disposes the scope.
type Scoped[T any] struct {
	value T
	scope *Scope
}

// Value returns the instance.
func (s Scoped[T]) Value() T { return s.value }

// Scope returns the child scope T was resolved in.
func (s Scoped[T]) Scope() *Scope { return s.scope }

// Close disposes the child scope.
func (s Scoped[T]) Close() error {
	if s.scope == nil {
		return nil
	}
	return s.scope.Close()
}

func (Scoped[T]) wrapperKind() wrapperKind { return wrapScoped }
func (Scoped[T]) innerType() reflect.Type  { return reflect.TypeFor[T]() }

func (Scoped[T]) build(p wrapperParts) reflect.Value {
	return reflect.ValueOf(Scoped[T]{value: valueAs[T](p.value), scope: p.scope})
}
