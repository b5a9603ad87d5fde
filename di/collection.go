package di

import (
	"cmp"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/kbukum/wirekit/typeref"
)

// Strategy is anything a Collection can hold.
type Strategy interface {
	Priority() int
	Sequence() uint64
}

// Collection holds the strategies registered for one type: unkeyed ones,
// keyed ones and the any-key fallbacks. Each list is kept in resolution
// order, highest priority first and the latest registration first among
// equals.
type Collection[S Strategy] struct {
	unkeyed []S
	keyed   map[any][]S
	keys    []any
	anyKey  []S
}

// Add inserts s. Callers must own the collection, usually a fresh Clone.
func (c *Collection[S]) Add(s S, key any, anyKey bool) {
	switch {
	case anyKey:
		c.anyKey = insertOrdered(c.anyKey, s)
	case key != nil:
		if c.keyed == nil {
			c.keyed = make(map[any][]S)
		}
		if _, ok := c.keyed[key]; !ok {
			c.keys = append(c.keys, key)
		}
		c.keyed[key] = insertOrdered(c.keyed[key], s)
	default:
		c.unkeyed = insertOrdered(c.unkeyed, s)
	}
}

func insertOrdered[S Strategy](list []S, s S) []S {
	i, _ := slices.BinarySearchFunc(list, s, compareStrategies[S])
	return slices.Insert(list, i, s)
}

func compareStrategies[S Strategy](a, b S) int {
	if c := cmp.Compare(b.Priority(), a.Priority()); c != 0 {
		return c
	}
	return cmp.Compare(b.Sequence(), a.Sequence())
}

// Primary returns the first unkeyed strategy.
func (c *Collection[S]) Primary() (S, bool) {
	if c == nil || len(c.unkeyed) == 0 {
		var zero S
		return zero, false
	}
	return c.unkeyed[0], true
}

// All returns the unkeyed strategies in resolution order.
func (c *Collection[S]) All() []S {
	if c == nil {
		return nil
	}
	return slices.Clone(c.unkeyed)
}

// Keyed returns the strategies for key, then the any-key fallbacks.
func (c *Collection[S]) Keyed(key any) []S {
	if c == nil {
		return nil
	}
	out := slices.Clone(c.keyed[key])
	return append(out, c.anyKey...)
}

// AllKeyed returns every keyed strategy with its key, in resolution order.
func (c *Collection[S]) AllKeyed() ([]S, []any) {
	if c == nil {
		return nil, nil
	}
	type pair struct {
		s   S
		key any
	}
	var pairs []pair
	for _, k := range c.keys {
		for _, s := range c.keyed[k] {
			pairs = append(pairs, pair{s, k})
		}
	}
	slices.SortStableFunc(pairs, func(a, b pair) int { return compareStrategies(a.s, b.s) })
	ss := make([]S, len(pairs))
	ks := make([]any, len(pairs))
	for i, p := range pairs {
		ss[i], ks[i] = p.s, p.key
	}
	return ss, ks
}

// Len returns the number of strategies.
func (c *Collection[S]) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.unkeyed) + len(c.anyKey)
	for _, l := range c.keyed {
		n += len(l)
	}
	return n
}

// Clone returns a copy that can be mutated without affecting c.
func (c *Collection[S]) Clone() *Collection[S] {
	if c == nil {
		return &Collection[S]{}
	}
	out := &Collection[S]{
		unkeyed: slices.Clone(c.unkeyed),
		anyKey:  slices.Clone(c.anyKey),
		keys:    slices.Clone(c.keys),
	}
	if c.keyed != nil {
		out.keyed = make(map[any][]S, len(c.keyed))
		for k, l := range c.keyed {
			out.keyed[k] = slices.Clone(l)
		}
	}
	return out
}

type collectionSet map[typeref.Type]*Collection[*Export]

func (cs collectionSet) add(t typeref.Type, e *Export) collectionSet {
	out := maps.Clone(cs)
	if out == nil {
		out = make(collectionSet)
	}
	c := out[t].Clone()
	c.Add(e, e.key, e.anyKey)
	out[t] = c
	return out
}

type openSet map[*typeref.Definition]*Collection[*Export]

func (s openSet) add(d *typeref.Definition, e *Export) openSet {
	out := maps.Clone(s)
	if out == nil {
		out = make(openSet)
	}
	c := out[d].Clone()
	c.Add(e, e.key, e.anyKey)
	out[d] = c
	return out
}

// registry is an immutable snapshot of a scope's registrations plus the
// cache of functions compiled against it. Registration publishes a new
// snapshot with an empty cache.
type registry struct {
	exports    collectionSet
	open       openSet
	decorators collectionSet
	wrappers   collectionSet
	all        []registration
	cache      atomic.Pointer[map[cacheKey]activation]
}

type registrationKind string

const (
	registeredExport    registrationKind = "export"
	registeredDecorator registrationKind = "decorator"
	registeredWrapper   registrationKind = "wrapper"
)

type registration struct {
	export *Export
	kind   registrationKind
}

func newRegistry() *registry {
	r := &registry{}
	r.cache.Store(&map[cacheKey]activation{})
	return r
}

func (r *registry) with(e *Export, kind registrationKind) *registry {
	out := &registry{
		exports:    r.exports,
		open:       r.open,
		decorators: r.decorators,
		wrappers:   r.wrappers,
		all:        append(slices.Clip(r.all), registration{export: e, kind: kind}),
	}
	out.cache.Store(&map[cacheKey]activation{})
	switch kind {
	case registeredDecorator:
		for _, t := range e.Types() {
			out.decorators = out.decorators.add(t, e)
		}
	case registeredWrapper:
		for _, t := range e.Types() {
			out.wrappers = out.wrappers.add(t, e)
		}
	default:
		if e.kind == kindOpenGeneric {
			out.open = out.open.add(e.open, e)
			for _, d := range e.asOpen {
				out.open = out.open.add(d, e)
			}
			break
		}
		for _, t := range e.Types() {
			out.exports = out.exports.add(t, e)
		}
	}
	return out
}

// clone copies the registrations without the compiled cache.
func (r *registry) clone() *registry {
	out := &registry{
		exports:    r.exports,
		open:       r.open,
		decorators: r.decorators,
		wrappers:   r.wrappers,
		all:        slices.Clip(r.all),
	}
	out.cache.Store(&map[cacheKey]activation{})
	return out
}

func (r *registry) lookup(k cacheKey) (activation, bool) {
	fn, ok := (*r.cache.Load())[k]
	return fn, ok
}

// store publishes fn unless another goroutine got there first, in which
// case the winner is returned.
func (r *registry) store(k cacheKey, fn activation) (activation, bool) {
	for {
		old := r.cache.Load()
		if existing, ok := (*old)[k]; ok {
			return existing, false
		}
		next := maps.Clone(*old)
		next[k] = fn
		if r.cache.CompareAndSwap(old, &next) {
			return fn, true
		}
	}
}
