package di

import (
	"fmt"
	"io"
	"reflect"

	"github.com/kbukum/wirekit/disposal"
	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
)

// activation produces one value. s is the scope the value is resolved in
// and ds the disposal scope that owns what it creates.
type activation func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error)

func (p *planner) compile(n *planNode) activation {
	switch n.kind {
	case nodeValue:
		v := n.value
		return func(*Scope, *disposal.Scope, *InjectionContext) (reflect.Value, error) { return v, nil }
	case nodeContext:
		return func(_ *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			return reflect.ValueOf(&ic.graph.ctx).Elem(), nil
		}
	case nodeScope:
		return func(s *Scope, _ *disposal.Scope, _ *InjectionContext) (reflect.Value, error) {
			return reflect.ValueOf(s), nil
		}
	case nodeInjectionContext:
		return func(_ *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			return reflect.ValueOf(ic), nil
		}
	case nodeExport:
		return p.compileExport(n)
	case nodeWrapper:
		return p.compileWrapper(n)
	case nodeDeferred:
		return p.compileLazy(n)
	case nodeFactory:
		return p.compileFactory(n)
	case nodeSlice:
		return p.compileSlice(n)
	}
	panic(fmt.Sprintf("di: unknown plan node kind %d", n.kind))
}

func (p *planner) compileArgs(nodes []*planNode) []activation {
	out := make([]activation, len(nodes))
	for i, n := range nodes {
		if n != nil {
			out[i] = p.compile(n)
		}
	}
	return out
}

// fit adapts v to t, unwrapping interfaces. An invalid v yields the zero value.
func fit(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Zero(t), true
	}
	if v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(t), true
		}
		return fit(v.Elem(), t)
	}
	return v, false
}

func fitArg(v reflect.Value, t reflect.Type, n *planNode) (reflect.Value, error) {
	out, ok := fit(v, t)
	if !ok {
		return out, errors.ConstructionFailed(n.impl.String(), n.chain,
			fmt.Errorf("%s is not assignable to %s", v.Type(), t))
	}
	return out, nil
}

// call invokes fn, turning panics and a trailing non-nil error into
// CONSTRUCTION_FAILED.
func call(fn reflect.Value, in []reflect.Value, name string, chain errors.Chain) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			err = errors.ConstructionFailed(name, chain, cause)
		}
	}()
	out = fn.Call(in)
	if n := len(out); n > 0 && fn.Type().Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			return nil, errors.ConstructionFailed(name, chain, e.Interface().(error))
		}
	}
	return out, nil
}

func resolveArgs(args []activation, types func(int) reflect.Type, n *planNode, s *Scope, ds *disposal.Scope, ic *InjectionContext) ([]reflect.Value, error) {
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			continue
		}
		v, err := a(s, ds, ic)
		if err != nil {
			return nil, err
		}
		if in[i], err = fitArg(v, types(i), n); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (p *planner) compileExport(n *planNode) activation {
	e := n.export
	core := p.compileConstruct(n)
	track := !e.externallyOwned && (e.lifestyle.caches() || p.cfg.TrackDisposableTransients)
	if track && e.kind != kindInstance {
		build := core
		core = func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			v, err := build(s, ds, ic)
			if err != nil {
				return v, err
			}
			return v, p.track(ic, ds, v, e.cleanup, n)
		}
	}
	var after []*decoratorPlan
	for _, d := range n.decorators {
		if d.after {
			after = append(after, d)
			continue
		}
		core = p.decorate(core, d, n)
	}
	core = e.lifestyle.wrap(nodeInfo{slot: n.slot, chain: n.chain}, core)
	for _, d := range after {
		core = p.decorate(core, d, n)
	}
	return core
}

// track hands v to ds. If ds is already closed v is disposed at once.
func (p *planner) track(ic *InjectionContext, ds *disposal.Scope, v reflect.Value, cleanup func(any) error, n *planNode) error {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	inst := v.Interface()
	var fn func() error
	if cleanup != nil {
		fn = func() error { return cleanup(inst) }
	}
	if err := ic.track(ds, inst, fn); err != nil {
		if c, ok := inst.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				p.scope.recordDisposalFailures(ic.Context(), 1, true)
				p.scope.log.Warn("closing instance built for a disposed scope failed", logger.Fields(
					logger.FieldServiceType, n.impl.String(),
					logger.FieldError, cerr.Error(),
				))
			}
		}
		return err
	}
	return nil
}

func (p *planner) compileConstruct(n *planNode) activation {
	e := n.export
	name := n.impl.String()
	members := p.compileMembers(n)
	switch e.kind {
	case kindInstance:
		v := n.value
		return func(*Scope, *disposal.Scope, *InjectionContext) (reflect.Value, error) { return v, nil }
	case kindConcrete:
		rt := n.impl.Reflect()
		return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			var v reflect.Value
			if rt.Kind() == reflect.Pointer {
				v = reflect.New(rt.Elem())
			} else {
				v = reflect.New(rt).Elem()
			}
			return members(v, s, ds, ic)
		}
	}
	fn := n.fn
	ft := fn.Type()
	args := p.compileArgs(n.args)
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		in, err := resolveArgs(args, ft.In, n, s, ds, ic)
		if err != nil {
			return reflect.Value{}, err
		}
		out, err := call(fn, in, name, n.chain)
		if err != nil {
			return reflect.Value{}, err
		}
		return members(out[0], s, ds, ic)
	}
}

type memberFunc func(v reflect.Value, s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error)

// compileMembers returns the step that injects fields and calls methods on
// a freshly built instance.
func (p *planner) compileMembers(n *planNode) memberFunc {
	if len(n.fields) == 0 && len(n.methods) == 0 {
		return func(v reflect.Value, _ *Scope, _ *disposal.Scope, _ *InjectionContext) (reflect.Value, error) {
			return v, nil
		}
	}
	type field struct {
		index []int
		typ   reflect.Type
		act   activation
	}
	type method struct {
		name string
		typ  reflect.Type
		args []activation
	}
	fields := make([]field, len(n.fields))
	for i, f := range n.fields {
		fields[i] = field{index: f.index, typ: f.typ, act: p.compile(f.node)}
	}
	methods := make([]method, len(n.methods))
	for i, m := range n.methods {
		methods[i] = method{name: m.name, typ: m.typ, args: p.compileArgs(m.args)}
	}
	name := n.impl.String()
	return func(v reflect.Value, s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		var target reflect.Value
		switch {
		case v.Kind() == reflect.Pointer && !v.IsNil():
			target = v.Elem()
		case v.Kind() == reflect.Struct:
			cp := reflect.New(v.Type()).Elem()
			cp.Set(v)
			v, target = cp, cp
		default:
			return v, errors.ConstructionFailed(name, n.chain, fmt.Errorf("cannot inject members into %s", v.Type()))
		}
		for _, f := range fields {
			fv, err := f.act(s, ds, ic)
			if err != nil {
				return reflect.Value{}, err
			}
			if fv, err = fitArg(fv, f.typ, n); err != nil {
				return reflect.Value{}, err
			}
			target.FieldByIndex(f.index).Set(fv)
		}
		for _, m := range methods {
			recv := v.MethodByName(m.name)
			if !recv.IsValid() && v.CanAddr() {
				recv = v.Addr().MethodByName(m.name)
			}
			if !recv.IsValid() {
				return reflect.Value{}, errors.ConstructionFailed(name, n.chain, fmt.Errorf("method %s is not callable", m.name))
			}
			in, err := resolveArgs(m.args, func(i int) reflect.Type { return m.typ.In(i + 1) }, n, s, ds, ic)
			if err != nil {
				return reflect.Value{}, err
			}
			if _, err := call(recv, in, name, n.chain); err != nil {
				return reflect.Value{}, err
			}
		}
		return v, nil
	}
}

func (p *planner) decorate(inner activation, d *decoratorPlan, n *planNode) activation {
	ft := d.fn.Type()
	args := p.compileArgs(d.args)
	name := d.export.impl.String()
	dn := &planNode{impl: d.export.impl, chain: d.chain}
	track := !d.export.externallyOwned && p.cfg.TrackDisposableTransients
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		v, err := inner(s, ds, ic)
		if err != nil {
			return v, err
		}
		in, err := resolveArgs(args, ft.In, dn, s, ds, ic)
		if err != nil {
			return reflect.Value{}, err
		}
		if in[d.target], err = fitArg(v, ft.In(d.target), dn); err != nil {
			return reflect.Value{}, err
		}
		out, err := call(d.fn, in, name, d.chain)
		if err != nil {
			return reflect.Value{}, err
		}
		if track {
			return out[0], p.track(ic, ds, out[0], d.export.cleanup, n)
		}
		return out[0], nil
	}
}

// runDeferred resolves fn on behalf of a wrapper invoked after the
// original resolution, one level deeper and with its own rollback.
func (p *planner) runDeferred(fn activation, s *Scope, ds *disposal.Scope, ic *InjectionContext, chain errors.Chain) (reflect.Value, error) {
	child := ic.deferred()
	if child.depth > p.cfg.MaxResolveDepth {
		return reflect.Value{}, errors.RecursionTooDeep(p.cfg.MaxResolveDepth, chain)
	}
	return s.execute(fn, ds, child)
}

// deferredResolver resolves n.inner, or n.innerKey through the scope's
// cache when the inner request was not planned up front.
func (p *planner) deferredResolver(n *planNode) func(s *Scope, ds *disposal.Scope, ic *InjectionContext) func() (reflect.Value, error) {
	if n.inner != nil {
		inner := p.compile(n.inner)
		return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) func() (reflect.Value, error) {
			return func() (reflect.Value, error) { return p.runDeferred(inner, s, ds, ic, n.chain) }
		}
	}
	key := n.innerKey
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) func() (reflect.Value, error) {
		return func() (reflect.Value, error) {
			fn, err := s.activationFor(ic.Context(), key)
			if err != nil {
				return reflect.Value{}, err
			}
			return p.runDeferred(fn, s, ds, ic, n.chain)
		}
	}
}

func (p *planner) compileLazy(n *planNode) activation {
	resolver := p.deferredResolver(n)
	sh := n.shape
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		return sh.build(wrapperParts{resolve: resolver(s, ds, ic)}), nil
	}
}

func (p *planner) compileFactory(n *planNode) activation {
	resolver := p.deferredResolver(n)
	rt := n.goType
	out := rt.Out(0)
	withErr := n.withErr
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		resolve := resolver(s, ds, ic)
		return reflect.MakeFunc(rt, func([]reflect.Value) []reflect.Value {
			v, err := resolve()
			if err == nil {
				v, err = fitArg(v, out, n)
			}
			if !withErr {
				if err != nil {
					panic(err)
				}
				return []reflect.Value{v}
			}
			if err != nil {
				return []reflect.Value{reflect.Zero(out), reflect.ValueOf(&err).Elem()}
			}
			return []reflect.Value{v, reflect.Zero(errorType)}
		}), nil
	}
}

func (p *planner) compileWrapper(n *planNode) activation {
	sh := n.shape
	if sh.wrapperKind() == wrapLazy {
		return p.compileLazy(n)
	}
	inner := p.compile(n.inner)
	var meta Metadata
	var key any
	if n.inner.kind == nodeExport {
		meta = n.inner.export.metadata
		key = n.inner.key
	}
	switch sh.wrapperKind() {
	case wrapOwned:
		return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			owned := disposal.New(disposal.WithLogger(s.log))
			v, err := inner(s, owned, ic)
			if err != nil {
				return v, err
			}
			return sh.build(wrapperParts{value: v, owned: owned}), nil
		}
	case wrapScoped:
		name := n.scopeName
		return func(s *Scope, _ *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
			child, err := s.BeginScope(ScopeName(name))
			if err != nil {
				return reflect.Value{}, err
			}
			ic.remember(s.disposal, child.parentToken)
			v, err := inner(child, child.disposal, ic)
			if err != nil {
				return v, err
			}
			return sh.build(wrapperParts{value: v, scope: child}), nil
		}
	}
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		v, err := inner(s, ds, ic)
		if err != nil {
			return v, err
		}
		return sh.build(wrapperParts{value: v, metadata: meta, key: key}), nil
	}
}

func (p *planner) compileSlice(n *planNode) activation {
	elems := p.compileArgs(n.elems)
	st := n.goType
	return func(s *Scope, ds *disposal.Scope, ic *InjectionContext) (reflect.Value, error) {
		if st == nil {
			out := make([]any, 0, len(elems))
			for _, e := range elems {
				v, err := e(s, ds, ic)
				if err != nil {
					return reflect.Value{}, err
				}
				if v.IsValid() && v.CanInterface() {
					out = append(out, v.Interface())
				} else {
					out = append(out, nil)
				}
			}
			return reflect.ValueOf(out), nil
		}
		out := reflect.MakeSlice(st, len(elems), len(elems))
		for i, e := range elems {
			v, err := e(s, ds, ic)
			if err != nil {
				return reflect.Value{}, err
			}
			if v, err = fitArg(v, st.Elem(), n.elems[i]); err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(v)
		}
		return out, nil
	}
}
