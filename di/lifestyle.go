package di

import (
	"reflect"
	"sync/atomic"
	"unsafe"
	"weak"

	"github.com/kbukum/wirekit/disposal"
	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
)

// Lifestyle decides how long an instance lives and who shares it.
type Lifestyle interface {
	String() string
	// caches reports whether instances are shared beyond one injection.
	caches() bool
	wrap(n nodeInfo, inner activation) activation
}

var (
	// Transient builds a new instance for every injection.
	Transient Lifestyle = transient{}
	// Singleton builds one instance per root scope, shared by all its
	// descendants. Dependencies are resolved against the root.
	Singleton Lifestyle = singleton{}
	// SingletonPerScope builds one instance per scope. A child scope gets
	// its own instance.
	SingletonPerScope Lifestyle = perScope{}
	// SingletonPerObjectGraph builds one instance per top-level resolution.
	SingletonPerObjectGraph Lifestyle = perGraph{}
	// WeakSingleton shares one instance while something else keeps it
	// alive. Pointer instances only; other kinds are held strongly. Weak
	// instances and their dependencies are never disposed by the engine.
	WeakSingleton Lifestyle = weakSingleton{}
)

// rootShared reports lifestyles whose instances live on the root scope
// for every descendant.
func rootShared(l Lifestyle) bool {
	switch l.(type) {
	case singleton, weakSingleton:
		return true
	}
	return false
}

// SingletonPerNamedScope builds one instance per nearest ancestor scope
// called name. Resolving outside such a scope fails with
// NAMED_SCOPE_NOT_FOUND.
func SingletonPerNamedScope(name string) Lifestyle {
	return perNamedScope{name: name}
}

type transient struct{}

func (transient) String() string { return "transient" }
func (transient) caches() bool   { return false }

func (transient) wrap(_ nodeInfo, inner activation) activation { return inner }

// cell is one published instance slot.
type cell struct {
	v atomic.Pointer[reflect.Value]
}

// publish runs inner and publishes the result into c. A construction that
// loses the race is discarded and the winner returned.
func publish(c *cell, n nodeInfo, s *Scope, ds *disposal.Scope, ic *InjectionContext, inner activation) (reflect.Value, error) {
	if v := c.v.Load(); v != nil {
		return *v, nil
	}
	mark := ic.mark()
	v, err := inner(s, ds, ic)
	if err != nil {
		return v, err
	}
	if c.v.CompareAndSwap(nil, &v) {
		ic.commit(mark)
		return v, nil
	}
	err = ic.discard(mark)
	if s.log.DebugEnabled() || err != nil {
		fields := logger.Fields(
			logger.FieldScopeID, s.id,
			logger.FieldServiceType, n.slot.typ.String(),
		)
		if err != nil {
			s.recordDisposalFailures(ic.Context(), 1, true)
			s.log.Warn("discarding instance that lost a lifestyle race failed", logger.MergeWithError(fields, err))
		} else {
			s.log.Debug("lifestyle race lost, instance discarded", fields)
		}
	}
	return *c.v.Load(), nil
}

type singleton struct{}

func (singleton) String() string { return "singleton" }
func (singleton) caches() bool   { return true }

func (singleton) wrap(n nodeInfo, inner activation) activation {
	return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		root := s.root
		return publish(root.cell(n.slot), n, root, root.disposal, ic, inner)
	}
}

type perScope struct{}

func (perScope) String() string { return "singleton-per-scope" }
func (perScope) caches() bool   { return true }

func (perScope) wrap(n nodeInfo, inner activation) activation {
	return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		return publish(s.cell(n.slot), n, s, s.disposal, ic, inner)
	}
}

type perNamedScope struct{ name string }

func (l perNamedScope) String() string { return "singleton-per-named-scope(" + l.name + ")" }
func (perNamedScope) caches() bool     { return true }

func (l perNamedScope) wrap(n nodeInfo, inner activation) activation {
	return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		named := s.named(l.name)
		if named == nil {
			return reflect.Value{}, errors.NamedScopeNotFound(l.name, n.chain)
		}
		return publish(named.cell(n.slot), n, named, named.disposal, ic, inner)
	}
}

type perGraph struct{}

func (perGraph) String() string { return "singleton-per-object-graph" }
func (perGraph) caches() bool   { return true }

func (perGraph) wrap(n nodeInfo, inner activation) activation {
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		if v, ok := ic.graphValue(n.slot); ok {
			return v, nil
		}
		v, err := inner(s, ds, ic)
		if err != nil {
			return v, err
		}
		return ic.storeGraphValue(n.slot, v), nil
	}
}

type weakSingleton struct{}

func (weakSingleton) String() string { return "weak-singleton" }
func (weakSingleton) caches() bool   { return true }

// weakRef holds a pointer instance weakly, or any other kind strongly.
type weakRef struct {
	ptr    weak.Pointer[byte]
	typ    reflect.Type
	strong reflect.Value
}

func newWeakRef(v reflect.Value) *weakRef {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return &weakRef{strong: v}
	}
	return &weakRef{ptr: weak.Make((*byte)(v.UnsafePointer())), typ: v.Type()}
}

func (w *weakRef) get() (reflect.Value, bool) {
	if w.typ == nil {
		return w.strong, true
	}
	p := w.ptr.Value()
	if p == nil {
		return reflect.Value{}, false
	}
	return reflect.NewAt(w.typ.Elem(), unsafe.Pointer(p)).Convert(w.typ), true
}

func (weakSingleton) wrap(n nodeInfo, inner activation) activation {
	return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		root := s.root
		c := root.weakCell(n.slot)
		old := c.Load()
		if old != nil {
			if v, ok := old.get(); ok {
				return v, nil
			}
		}
		mark := ic.mark()
		v, err := inner(root, disposal.New(), ic)
		if err != nil {
			return v, err
		}
		ic.commit(mark)
		ref := newWeakRef(v)
		if c.CompareAndSwap(old, ref) {
			return v, nil
		}
		if cur := c.Load(); cur != nil {
			if won, ok := cur.get(); ok {
				return won, nil
			}
		}
		return v, nil
	}
}
