package di

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/wirekit/config"
	"github.com/kbukum/wirekit/disposal"
	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
	"github.com/kbukum/wirekit/typeref"
	"github.com/kbukum/wirekit/version"
)

// Container is the resolution surface shared by root and child scopes.
type Container interface {
	Register(exports ...*Export) error
	RegisterDecorator(exports ...*Export) error
	RegisterWrapper(exports ...*Export) error
	Resolve(ctx context.Context, typ typeref.Type, opts ...ResolveOption) (any, error)
	ResolveAll(ctx context.Context, typ typeref.Type, opts ...ResolveOption) ([]any, error)
	CanResolve(ctx context.Context, typ typeref.Type, opts ...ResolveOption) bool
	BeginScope(opts ...ScopeOption) (*Scope, error)
	Track(v any, cleanup func() error) (any, error)
	Untrack(v any) (bool, error)
	Registrations() []RegistrationInfo
	Close() error
}

var _ Container = (*Scope)(nil)

// Scope is an injection scope. The root scope owns the configuration and
// the singletons; child scopes own their per-scope instances and the
// disposables created through them. Closing a scope closes its children.
//
// A child scope sees its parent's registrations. Registering on a child
// takes a snapshot of the parent's registrations at that point; later
// parent registrations are not visible to it.
type Scope struct {
	id     string
	name   string
	parent *Scope
	root   *Scope

	cfg  *config.Config
	log  *logger.Logger
	inst *observability.Instruments
	seq  *atomic.Uint64

	mu  sync.Mutex
	reg atomic.Pointer[registry]

	disposal    *disposal.Scope
	parentToken disposal.Token
	cells       sync.Map
	weak        sync.Map
	extra       sync.Map
	children    sync.Map // id -> open child *Scope
	failures    atomic.Int64
	closed      atomic.Bool
}

// New creates a root scope. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Scope, error) {
	if cfg == nil {
		cfg = config.Default()
	} else {
		cp := *cfg
		cfg = &cp
		cfg.ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.New(&cfg.Logging, cfg.Observability.ServiceName)
	}
	if o.inst == nil {
		o.inst = observability.Global(cfg.Observability.Tracing, cfg.Observability.Metrics)
	}
	log := o.log.WithComponent("wirekit.di")

	s := &Scope{
		id:       uuid.NewString(),
		name:     o.name,
		cfg:      cfg,
		log:      log,
		inst:     o.inst,
		seq:      new(atomic.Uint64),
		disposal: disposal.New(disposal.WithLogger(log)),
	}
	s.root = s
	s.reg.Store(newRegistry())
	s.inst.Metrics().ScopeOpened(context.Background())
	s.log.Debug("root scope created", logger.Fields(
		logger.FieldScopeID, s.id,
		logger.FieldDepth, cfg.MaxResolveDepth,
	))
	return s, nil
}

// ID returns the scope's unique id.
func (s *Scope) ID() string { return s.id }

// Name returns the scope name, or "".
func (s *Scope) Name() string { return s.name }

// Parent returns the parent scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Root returns the root scope.
func (s *Scope) Root() *Scope { return s.root }

// Config returns the engine configuration.
func (s *Scope) Config() config.Config { return *s.cfg }

// BeginScope creates a child scope. The child is closed when s is.
func (s *Scope) BeginScope(opts ...ScopeOption) (*Scope, error) {
	if s.closed.Load() {
		return nil, errors.ScopeDisposed(s.id)
	}
	o := scopeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	child := &Scope{
		id:       uuid.NewString(),
		name:     o.name,
		parent:   s,
		root:     s.root,
		cfg:      s.cfg,
		log:      s.log,
		inst:     s.inst,
		seq:      s.seq,
		disposal: disposal.New(disposal.WithLogger(s.log)),
	}
	for k, v := range o.extra {
		child.extra.Store(k, v)
	}
	token, err := s.disposal.Track(child, nil)
	if err != nil {
		return nil, errors.ScopeDisposed(s.id)
	}
	child.parentToken = token
	s.children.Store(child.id, child)
	s.inst.Metrics().ScopeOpened(context.Background())
	s.log.Debug("scope created", logger.Fields(
		logger.FieldScopeID, child.id,
		logger.FieldScopeName, child.name,
	))
	return child, nil
}

// Register adds exports to this scope.
func (s *Scope) Register(exports ...*Export) error {
	return s.register(registeredExport, exports)
}

// RegisterDecorator adds decorators. A decorator is a constructor with a
// parameter of the decorated type, registered As that type.
func (s *Scope) RegisterDecorator(exports ...*Export) error {
	return s.register(registeredDecorator, exports)
}

// RegisterWrapper adds wrapper exports. For the types they export they
// take precedence over ordinary exports and the built-in wrappers.
func (s *Scope) RegisterWrapper(exports ...*Export) error {
	return s.register(registeredWrapper, exports)
}

func (s *Scope) register(kind registrationKind, exports []*Export) error {
	if s.closed.Load() {
		return errors.ScopeDisposed(s.id)
	}
	for _, e := range exports {
		if e == nil {
			return errors.InvalidExport("export must not be nil")
		}
		if err := e.validate(kind == registeredDecorator); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := s.ownRegistry()
	for _, e := range exports {
		cp := *e
		cp.seq = s.seq.Add(1)
		cp.atRoot = s.parent == nil
		reg = reg.with(&cp, kind)
		s.log.Debug("export registered", logger.Fields(
			logger.FieldScopeID, s.id,
			logger.FieldServiceType, cp.String(),
			logger.FieldLifestyle, cp.lifestyle.String(),
			"kind", string(kind),
		))
	}
	s.reg.Store(reg)
	return nil
}

// ownRegistry returns the scope's registry, taking a snapshot of the
// inherited one on first use. Callers hold s.mu.
func (s *Scope) ownRegistry() *registry {
	if r := s.reg.Load(); r != nil {
		return r
	}
	return s.parent.registry().clone()
}

func (s *Scope) registry() *registry {
	for cur := s; cur != nil; cur = cur.parent {
		if r := cur.reg.Load(); r != nil {
			return r
		}
	}
	return nil
}

// Resolve returns an instance of typ.
func (s *Scope) Resolve(ctx context.Context, typ typeref.Type, opts ...ResolveOption) (any, error) {
	o := newResolveOptions(opts)
	v, err := s.resolve(ctx, cacheKey{typ: typ, key: o.key, filter: o.filter, scopeName: o.scopeName}, o.extra)
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface(), nil
}

// ResolveAll returns every export of typ, highest priority first and the
// most recent registration first among equals. Without ByKey only unkeyed
// exports are returned. No exports yield an empty slice.
func (s *Scope) ResolveAll(ctx context.Context, typ typeref.Type, opts ...ResolveOption) ([]any, error) {
	o := newResolveOptions(opts)
	v, err := s.resolve(ctx, cacheKey{typ: typ, key: o.key, filter: o.filter, all: true, scopeName: o.scopeName}, o.extra)
	if err != nil {
		return nil, err
	}
	return v.Interface().([]any), nil
}

// CanResolve reports whether typ has a valid plan. Nothing is constructed.
func (s *Scope) CanResolve(ctx context.Context, typ typeref.Type, opts ...ResolveOption) bool {
	if s.closed.Load() || typ.IsZero() {
		return false
	}
	o := newResolveOptions(opts)
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.activationFor(ctx, cacheKey{typ: typ, key: o.key, filter: o.filter, scopeName: o.scopeName})
	return err == nil
}

func (s *Scope) resolve(ctx context.Context, k cacheKey, extra map[string]any) (reflect.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.closed.Load() {
		return reflect.Value{}, errors.ScopeDisposed(s.id)
	}
	if k.typ.IsZero() {
		return reflect.Value{}, errors.InvalidExport("cannot resolve the zero type")
	}
	if k.key != nil && !reflect.TypeOf(k.key).Comparable() {
		return reflect.Value{}, errors.InvalidExport(fmt.Sprintf("key type %T is not comparable", k.key))
	}

	ctx, op := s.inst.StartResolve(ctx, k.typ.String(), k.key, s.id)
	fn, err := s.activationFor(ctx, k)
	var v reflect.Value
	if err == nil {
		v, err = s.execute(fn, s.disposal, newInjectionContext(ctx, s, extra))
	}
	op.End(ctx, err)
	if err != nil {
		s.log.Debug("resolve failed", logger.Fields(
			logger.FieldScopeID, s.id,
			logger.FieldServiceType, k.typ.String(),
			logger.FieldError, err.Error(),
		))
	}
	return v, err
}

// activationFor returns the compiled function for k, planning and
// compiling it on first use.
func (s *Scope) activationFor(ctx context.Context, k cacheKey) (activation, error) {
	reg := s.registry()
	metrics := s.inst.Metrics()
	if fn, ok := reg.lookup(k); ok {
		metrics.RecordCacheLookup(ctx, observability.CacheHit)
		return fn, nil
	}

	ctx, op := s.inst.StartCompile(ctx, k.typ.String())
	p := &planner{scope: s, reg: reg, cfg: s.cfg}
	node, err := p.plan(request{
		typ:       k.typ,
		goType:    k.typ.Reflect(),
		key:       k.key,
		filter:    k.filter,
		all:       k.all,
		scopeName: k.scopeName,
	})
	if err != nil {
		op.End(ctx, err)
		return nil, err
	}
	fn, won := reg.store(k, p.compile(node))
	op.End(ctx, nil)

	result := observability.CacheMiss
	if !won {
		result = observability.CacheRace
		s.log.Debug("compiled plan lost a cache race", logger.Fields(logger.FieldServiceType, k.typ.String()))
	}
	metrics.RecordCacheLookup(ctx, result)
	metrics.RecordCompile(ctx, k.typ.String())
	if s.log.DebugEnabled() {
		s.log.Debug("plan compiled", logger.Fields(
			logger.FieldServiceType, k.typ.String(),
			logger.FieldServiceKey, k.key,
			logger.FieldDuration, op.Duration().Milliseconds(),
		))
	}
	return fn, nil
}

// execute runs fn as one unit: on failure everything it tracked is
// disposed again, newest first.
func (s *Scope) execute(fn activation, ds *disposal.Scope, ic *InjectionContext) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			v, err = reflect.Value{}, errors.ConstructionFailed("resolution", nil, cause)
		}
		if err == nil {
			ic.commit(0)
			return
		}
		if rerr := ic.discard(0); rerr != nil {
			s.recordDisposalFailures(ic.Context(), 1, true)
			s.log.Warn("rolling back partial resolution failed", logger.Fields(
				logger.FieldScopeID, s.id,
				logger.FieldError, rerr.Error(),
			))
		}
	}()
	return fn(s, ds, ic)
}

// Track hands v to the scope for disposal and returns it. v is closed if
// it is an io.Closer, after cleanup runs.
func (s *Scope) Track(v any, cleanup func() error) (any, error) {
	if s.closed.Load() {
		return v, errors.ScopeDisposed(s.id)
	}
	if _, err := s.disposal.Track(v, cleanup); err != nil {
		return v, errors.ScopeDisposed(s.id)
	}
	return v, nil
}

// Untrack takes v back from the scope so that closing the scope leaves it
// alone. It reports whether v was tracked; only the most recent entry for
// v is removed.
func (s *Scope) Untrack(v any) (bool, error) {
	if s.closed.Load() {
		return false, errors.ScopeDisposed(s.id)
	}
	return s.disposal.UntrackValue(v), nil
}

// Close disposes everything the scope owns, child scopes included, in
// reverse order of creation. It runs once; later calls return nil.
func (s *Scope) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, op := s.inst.StartDispose(context.Background(), s.id)
	err := s.disposal.Close()
	if s.parent != nil {
		s.parent.disposal.Untrack(s.parentToken)
		s.parent.children.Delete(s.id)
	}
	metrics := s.inst.Metrics()
	metrics.ScopeClosed(ctx)
	if err != nil {
		failed := 1
		if e, ok := errors.AsError(err); ok {
			if n, ok := e.Details["failed"].(int); ok {
				failed = n
			}
		}
		s.recordDisposalFailures(ctx, failed, false)
		s.log.Warn("scope closed with disposal failures", logger.Fields(
			logger.FieldScopeID, s.id,
			logger.FieldCount, failed,
			logger.FieldError, err.Error(),
		))
	} else {
		s.log.Debug("scope closed", logger.Fields(logger.FieldScopeID, s.id))
	}
	op.End(ctx, err)
	return err
}

// recordDisposalFailures counts failed disposals against the scope's
// ancestors, and against the scope itself when self is set, so that health
// reports them as degraded.
func (s *Scope) recordDisposalFailures(ctx context.Context, n int, self bool) {
	s.inst.Metrics().RecordDisposalErrors(ctx, n)
	cur := s.parent
	if self {
		cur = s
	}
	for ; cur != nil; cur = cur.parent {
		cur.failures.Add(int64(n))
	}
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool { return s.closed.Load() }

// ExtraData returns data stored on this scope or the nearest ancestor.
func (s *Scope) ExtraData(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.extra.Load(key); ok {
			return v, true
		}
	}
	return nil, false
}

// SetExtraData stores data on this scope.
func (s *Scope) SetExtraData(key string, value any) {
	s.extra.Store(key, value)
}

func (s *Scope) named(name string) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur
		}
	}
	return nil
}

func (s *Scope) cell(k slotKey) *cell {
	if c, ok := s.cells.Load(k); ok {
		return c.(*cell)
	}
	c, _ := s.cells.LoadOrStore(k, &cell{})
	return c.(*cell)
}

func (s *Scope) weakCell(k slotKey) *atomic.Pointer[weakRef] {
	if c, ok := s.weak.Load(k); ok {
		return c.(*atomic.Pointer[weakRef])
	}
	c, _ := s.weak.LoadOrStore(k, new(atomic.Pointer[weakRef]))
	return c.(*atomic.Pointer[weakRef])
}

// RegistrationInfo describes one registration for introspection.
type RegistrationInfo struct {
	Kind      string
	Types     []string
	Key       any
	Priority  int
	Lifestyle string
	Sequence  uint64
}

// Registrations lists what the scope can see, in registration order.
func (s *Scope) Registrations() []RegistrationInfo {
	reg := s.registry()
	out := make([]RegistrationInfo, 0, len(reg.all))
	for _, r := range reg.all {
		e := r.export
		info := RegistrationInfo{
			Kind:      string(r.kind),
			Key:       e.key,
			Priority:  e.priority,
			Lifestyle: e.lifestyle.String(),
			Sequence:  e.seq,
		}
		for _, t := range e.Types() {
			info.Types = append(info.Types, t.String())
		}
		if e.open != nil {
			info.Types = append(info.Types, e.open.String())
			for _, d := range e.asOpen {
				info.Types = append(info.Types, d.String())
			}
		}
		out = append(out, info)
	}
	return out
}

// CheckHealth reports the scope as down once it has been closed, and as
// degraded once a disposal in it or below it has failed.
func (s *Scope) CheckHealth(_ context.Context) observability.Health {
	h := observability.Health{
		Name:   "wirekit.scope",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"scope_id":      s.id,
			"registrations": strconv.Itoa(len(s.registry().all)),
			"tracked":       strconv.Itoa(s.disposal.Len()),
			"version":       version.Short(),
		},
	}
	if s.name != "" {
		h.Details["scope_name"] = s.name
	}
	if n := s.failures.Load(); n > 0 {
		h.Status = observability.HealthStatusDegraded
		h.Message = fmt.Sprintf("%d disposals failed", n)
		h.Details["disposal_failures"] = strconv.FormatInt(n, 10)
	}
	if s.closed.Load() {
		h.Status = observability.HealthStatusDown
		h.Message = "scope has been disposed"
	}
	return h
}

// Health reports s and every open scope below it, depth first.
func (s *Scope) Health(ctx context.Context) *observability.Report {
	r := observability.NewReport(s.cfg.Observability.ServiceName, version.Short())
	var walk func(*Scope)
	walk = func(cur *Scope) {
		r.Add(cur.CheckHealth(ctx))
		for _, child := range cur.openChildren() {
			walk(child)
		}
	}
	walk(s)
	return r
}

// openChildren returns the open child scopes ordered by id.
func (s *Scope) openChildren() []*Scope {
	var out []*Scope
	s.children.Range(func(_, v any) bool {
		out = append(out, v.(*Scope))
		return true
	})
	slices.SortFunc(out, func(a, b *Scope) int { return strings.Compare(a.id, b.id) })
	return out
}

var _ observability.HealthChecker = (*Scope)(nil)
