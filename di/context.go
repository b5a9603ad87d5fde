package di

import (
	"context"
	"reflect"
	"sync"

	"github.com/kbukum/wirekit/disposal"
	"github.com/kbukum/wirekit/errors"
)

// InjectionContext carries per-call state through one resolution: the
// caller's context, extra data, per-object-graph instances and the
// disposables to roll back if the call fails. Constructors can take it as
// a parameter.
type InjectionContext struct {
	graph    *graphState
	depth    int
	rollback *rollbackList
}

type graphState struct {
	ctx       context.Context
	scope     *Scope
	mu        sync.Mutex
	extra     map[string]any
	instances map[slotKey]reflect.Value
}

type tracked struct {
	ds    *disposal.Scope
	token disposal.Token
}

type rollbackList struct {
	entries []tracked
}

func newInjectionContext(ctx context.Context, s *Scope, extra map[string]any) *InjectionContext {
	return &InjectionContext{
		graph:    &graphState{ctx: ctx, scope: s, extra: extra},
		rollback: &rollbackList{},
	}
}

// deferred returns a context for a resolution started later by a wrapper.
// It shares the object graph, runs one level deeper and rolls back on its
// own.
func (c *InjectionContext) deferred() *InjectionContext {
	return &InjectionContext{graph: c.graph, depth: c.depth + 1, rollback: &rollbackList{}}
}

// Context returns the context passed to the top-level resolve call.
func (c *InjectionContext) Context() context.Context { return c.graph.ctx }

// Depth returns how many deferred resolutions enclose this one.
func (c *InjectionContext) Depth() int { return c.depth }

// ExtraData returns call data set for this resolution, falling back to the
// scope chain.
func (c *InjectionContext) ExtraData(key string) (any, bool) {
	c.graph.mu.Lock()
	v, ok := c.graph.extra[key]
	c.graph.mu.Unlock()
	if ok {
		return v, true
	}
	return c.graph.scope.ExtraData(key)
}

// SetExtraData stores call data visible to the rest of this resolution.
func (c *InjectionContext) SetExtraData(key string, value any) {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	if c.graph.extra == nil {
		c.graph.extra = make(map[string]any)
	}
	c.graph.extra[key] = value
}

func (c *InjectionContext) graphValue(k slotKey) (reflect.Value, bool) {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	v, ok := c.graph.instances[k]
	return v, ok
}

func (c *InjectionContext) storeGraphValue(k slotKey, v reflect.Value) reflect.Value {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	if existing, ok := c.graph.instances[k]; ok {
		return existing
	}
	if c.graph.instances == nil {
		c.graph.instances = make(map[slotKey]reflect.Value)
	}
	c.graph.instances[k] = v
	return v
}

// track registers v with ds and remembers it for rollback.
func (c *InjectionContext) track(ds *disposal.Scope, v any, cleanup func() error) error {
	token, err := ds.Track(v, cleanup)
	if err != nil || token == 0 {
		return err
	}
	c.rollback.entries = append(c.rollback.entries, tracked{ds: ds, token: token})
	return nil
}

func (c *InjectionContext) mark() int { return len(c.rollback.entries) }

// commit hands everything tracked since mark over to its scope for good.
func (c *InjectionContext) commit(mark int) {
	c.rollback.entries = c.rollback.entries[:mark]
}

// discard disposes everything tracked since mark, newest first.
func (c *InjectionContext) discard(mark int) error {
	entries := c.rollback.entries[mark:]
	c.rollback.entries = c.rollback.entries[:mark]
	var errs []error
	for i := len(entries) - 1; i >= 0; {
		ds := entries[i].ds
		var tokens []disposal.Token
		for ; i >= 0 && entries[i].ds == ds; i-- {
			tokens = append([]disposal.Token{entries[i].token}, tokens...)
		}
		if err := ds.CloseEntries(tokens); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remember records an entry tracked outside track for rollback.
func (c *InjectionContext) remember(ds *disposal.Scope, token disposal.Token) {
	if token != 0 {
		c.rollback.entries = append(c.rollback.entries, tracked{ds: ds, token: token})
	}
}
