package di

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/kbukum/wirekit/config"
	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/typeref"
)

var (
	contextType          = reflect.TypeFor[context.Context]()
	scopeType            = reflect.TypeFor[*Scope]()
	injectionContextType = reflect.TypeFor[*InjectionContext]()
	serviceKeyType       = reflect.TypeFor[ServiceKey]()
)

// cacheKey identifies a compiled top-level request.
type cacheKey struct {
	typ       typeref.Type
	key       any
	filter    *Filter
	all       bool
	scopeName string
}

// slotKey identifies the cached instance of one export. Closed generics get
// one slot per closed type; decorated instances one per decorated type.
type slotKey struct {
	export    *Export
	typ       typeref.Type
	decorated typeref.Type
}

type nodeInfo struct {
	slot  slotKey
	chain errors.Chain
}

// request is one dependency being planned.
type request struct {
	typ       typeref.Type
	goType    reflect.Type
	key       any
	filter    *Filter
	parent    typeref.Type
	member    string
	chain     errors.Chain
	depth     int
	optional  bool
	def       reflect.Value
	all       bool
	scopeName string
}

func (r request) info() Request {
	return Request{Type: r.typ, Key: r.key, Parent: r.parent, Member: r.member}
}

// errorChain is the chain reported for a failure at this request.
func (r request) errorChain() errors.Chain {
	return r.chain.Append(errors.Frame{Type: r.typ.String()})
}

// child derives the request for a member of the instance being built.
func (r request) child(parent typeref.Type, member string, rt reflect.Type, spec paramSpec) request {
	c := request{
		typ:       typeref.For(rt),
		goType:    rt,
		key:       spec.key,
		filter:    spec.filter,
		parent:    parent,
		member:    member,
		chain:     r.chain.Append(errors.Frame{Type: parent.String(), Member: member}),
		depth:     r.depth + 1,
		optional:  spec.optional,
		def:       spec.def,
		scopeName: r.scopeName,
	}
	if !spec.typ.IsZero() {
		c.typ = spec.typ
	}
	return c
}

type nodeKind int

const (
	nodeExport nodeKind = iota
	nodeValue
	nodeContext
	nodeScope
	nodeInjectionContext
	nodeWrapper
	nodeDeferred
	nodeFactory
	nodeSlice
)

// planNode is one step of a plan: how to obtain a value for a request.
type planNode struct {
	kind   nodeKind
	typ    typeref.Type
	goType reflect.Type
	chain  errors.Chain
	value  reflect.Value

	// nodeExport
	export     *Export
	impl       typeref.Type
	fn         reflect.Value
	key        any
	slot       slotKey
	args       []*planNode
	fields     []fieldPlan
	methods    []methodPlan
	decorators []*decoratorPlan

	// wrappers, factories and collections
	shape     shape
	inner     *planNode
	innerKey  cacheKey
	withErr   bool
	scopeName string
	elems     []*planNode
}

type fieldPlan struct {
	index []int
	typ   reflect.Type
	node  *planNode
}

type methodPlan struct {
	name string
	typ  reflect.Type
	args []*planNode
}

type decoratorPlan struct {
	export *Export
	fn     reflect.Value
	target int
	args   []*planNode
	after  bool
	chain  errors.Chain
}

// candidate is an export able to serve a request, closed if it was open.
type candidate struct {
	export *Export
	impl   typeref.Type
	fn     reflect.Value
	key    any
	// fallback marks an any-key export serving a keyed request; it ranks
	// after every export registered for the key itself.
	fallback bool
}

func (c candidate) Priority() int    { return c.export.priority }
func (c candidate) Sequence() uint64 { return c.export.seq }

func compareCandidates(a, b candidate) int {
	if a.fallback != b.fallback {
		if a.fallback {
			return 1
		}
		return -1
	}
	return compareStrategies(a, b)
}

// planner builds plans against one registry snapshot.
type planner struct {
	scope *Scope
	reg   *registry
	cfg   *config.Config
}

func (p *planner) plan(req request) (*planNode, error) {
	if req.depth > p.cfg.MaxResolveDepth {
		return nil, errors.RecursionTooDeep(p.cfg.MaxResolveDepth, req.errorChain())
	}
	if req.all {
		return p.planAll(req, nil)
	}
	if n, ok := p.planSpecial(req); ok {
		return n, nil
	}
	if c := p.reg.wrappers[req.typ]; c != nil {
		if cands := p.admitted(req, p.choose(c, req), nil); len(cands) > 0 {
			return p.planExport(req, cands[0])
		}
	}
	cands, err := p.candidates(req)
	var constraintErr error
	if err != nil {
		if !errors.Is(err, errors.ErrCodeGenericConstraintUnsatisfied) {
			return nil, err
		}
		constraintErr = err
	}
	if len(cands) > 0 {
		cand, err := p.primary(req, cands)
		if err != nil {
			return nil, err
		}
		return p.planExport(req, cand)
	}
	if n, ok, err := p.planShape(req); ok || err != nil {
		return n, err
	}
	if constraintErr != nil {
		return nil, constraintErr
	}
	if p.cfg.AutoRegisterConcrete && req.key == nil {
		if e := concreteExport(req.typ); e != nil {
			return p.planExport(req, candidate{export: e, impl: req.typ})
		}
	}
	return p.missing(req)
}

func (p *planner) missing(req request) (*planNode, error) {
	if !req.optional || req.goType == nil {
		return nil, errors.MissingDependency(req.typ.String(), req.errorChain())
	}
	v := req.def
	if !v.IsValid() {
		v = reflect.Zero(req.goType)
	}
	return &planNode{kind: nodeValue, typ: req.typ, goType: req.goType, value: v, chain: req.errorChain()}, nil
}

func (p *planner) planSpecial(req request) (*planNode, bool) {
	n := &planNode{typ: req.typ, goType: req.goType, chain: req.errorChain()}
	switch req.typ.Reflect() {
	case contextType:
		n.kind = nodeContext
	case scopeType:
		n.kind = nodeScope
	case injectionContextType:
		n.kind = nodeInjectionContext
	default:
		return nil, false
	}
	return n, true
}

func (p *planner) choose(c *Collection[*Export], req request) []*Export {
	if req.key != nil {
		return c.Keyed(req.key)
	}
	return c.All()
}

// admitted turns exports into candidates, dropping those rejected by
// conditions or the request filter.
func (p *planner) admitted(req request, exps []*Export, keys []any) []candidate {
	var out []candidate
	for i, e := range exps {
		if !e.admits(req.info()) || !req.filter.allows(e) {
			continue
		}
		key := e.key
		if keys != nil {
			key = keys[i]
		} else if req.key != nil {
			key = req.key
		}
		out = append(out, candidate{export: e, impl: e.impl, fn: e.fn, key: key, fallback: req.key != nil && e.anyKey})
	}
	return out
}

// candidates collects the exact and open generic exports for req in
// resolution order. A constraint failure is reported only if nothing else
// matched.
func (p *planner) candidates(req request) ([]candidate, error) {
	return p.collect(req, func(c *Collection[*Export]) ([]*Export, []any) {
		return p.choose(c, req), nil
	})
}

func (p *planner) collect(req request, pick func(*Collection[*Export]) ([]*Export, []any)) ([]candidate, error) {
	var out []candidate
	if c := p.reg.exports[req.typ]; c != nil {
		exps, keys := pick(c)
		out = p.admitted(req, exps, keys)
	}
	var constraintErr error
	if def := req.typ.Definition(); def != nil {
		if c := p.reg.open[def]; c != nil {
			exps, keys := pick(c)
			for _, cand := range p.admitted(req, exps, keys) {
				closed, err := p.close(cand, req)
				if err != nil {
					if errors.Is(err, errors.ErrCodeGenericConstraintUnsatisfied) {
						constraintErr = err
						continue
					}
					return nil, err
				}
				if closed != nil {
					out = append(out, *closed)
				}
			}
		}
	}
	slices.SortStableFunc(out, compareCandidates)
	return out, constraintErr
}

// close closes an open generic candidate against the requested type. It
// returns nil when the type arguments cannot be inferred.
func (p *planner) close(cand candidate, req request) (*candidate, error) {
	e := cand.export
	var closed typeref.Type
	if e.open == req.typ.Definition() {
		closed = req.typ
	} else {
		var err error
		closed, err = typeref.CloseStrict(e.open, req.typ)
		if err != nil {
			if ce, ok := errors.AsError(err); ok {
				return nil, ce.WithChain(req.errorChain())
			}
			return nil, err
		}
		if closed.IsZero() {
			return nil, nil
		}
	}
	ctor, err := e.closer(closed)
	if err != nil {
		return nil, errors.InvalidExport(fmt.Sprintf("closing %s as %s failed", e.open, closed)).
			WithCause(err).WithChain(req.errorChain())
	}
	fn := reflect.ValueOf(ctor)
	if ctor == nil || fn.Kind() != reflect.Func || fn.Type().NumOut() == 0 {
		return nil, errors.InvalidExport(fmt.Sprintf("closing %s returned %T, not a constructor", e.open, ctor)).
			WithChain(req.errorChain())
	}
	cand.impl = closed
	cand.fn = fn
	return &cand, nil
}

func (p *planner) primary(req request, cands []candidate) (candidate, error) {
	first := cands[0]
	if p.cfg.StrictAmbiguity && req.key == nil && len(cands) > 1 && cands[1].export.priority == first.export.priority {
		return candidate{}, errors.AmbiguousExport(req.typ.String(), first.export.priority, req.errorChain())
	}
	return first, nil
}

// concreteExport synthesizes a transient export for an unregistered
// struct or pointer to struct.
func concreteExport(t typeref.Type) *Export {
	rt := t.Reflect()
	if rt == nil || structOf(rt) == nil {
		return nil
	}
	if _, ok := shapeOf(rt); ok {
		return nil
	}
	return &Export{kind: kindConcrete, impl: t, lifestyle: Transient, tagged: true}
}

func (p *planner) planExport(req request, cand candidate) (*planNode, error) {
	e := cand.export
	p = p.owning(e)
	n := &planNode{
		kind:   nodeExport,
		typ:    req.typ,
		goType: req.goType,
		export: e,
		impl:   cand.impl,
		fn:     cand.fn,
		key:    cand.key,
		chain:  req.chain.Append(errors.Frame{Type: cand.impl.String()}),
		slot:   slotKey{export: e, typ: cand.impl},
	}
	if e.kind == kindInstance {
		n.value = e.value
	}
	if e.kind == kindConstructor || e.kind == kindOpenGeneric {
		ft := n.fn.Type()
		n.args = make([]*planNode, ft.NumIn())
		for i := range ft.NumIn() {
			spec := newParamSpec(e.params[i])
			arg, err := p.planMember(req, n, fmt.Sprintf("param[%d]", i), ft.In(i), spec)
			if err != nil {
				return nil, err
			}
			n.args[i] = arg
		}
	}
	if err := p.planFields(req, n); err != nil {
		return nil, err
	}
	if err := p.planMethods(req, n); err != nil {
		return nil, err
	}
	if err := p.planDecorators(req, n); err != nil {
		return nil, err
	}
	return n, nil
}

// owning returns the planner that builds e's dependencies. Root exports
// whose instances are shared from the root plan against the root registry.
func (p *planner) owning(e *Export) *planner {
	if !e.atRoot || !rootShared(e.lifestyle) {
		return p
	}
	root := p.scope.root
	reg := root.registry()
	if reg == p.reg {
		return p
	}
	return &planner{scope: root, reg: reg, cfg: p.cfg}
}

// planMember plans one constructor parameter, field or method argument of n.
func (p *planner) planMember(req request, n *planNode, member string, rt reflect.Type, spec paramSpec) (*planNode, error) {
	chain := req.chain.Append(errors.Frame{Type: n.impl.String(), Member: member})
	if spec.hasValue {
		return &planNode{kind: nodeValue, typ: typeref.For(rt), goType: rt, value: spec.value, chain: chain}, nil
	}
	if rt == serviceKeyType && spec.typ.IsZero() {
		return &planNode{kind: nodeValue, typ: typeref.For(rt), goType: rt, value: reflect.ValueOf(ServiceKey{Value: n.key}), chain: chain}, nil
	}
	return p.plan(req.child(n.impl, member, rt, spec))
}

func (p *planner) planFields(req request, n *planNode) error {
	e := n.export
	rt := n.impl.Reflect()
	if rt == nil || (len(e.fields) == 0 && !e.tagged) {
		return nil
	}
	st := structOf(rt)
	if st == nil {
		return nil
	}
	plan := func(sf reflect.StructField, opts []ParamOption) error {
		node, err := p.planMember(req, n, sf.Name, sf.Type, newParamSpec(opts))
		if err != nil {
			return err
		}
		n.fields = append(n.fields, fieldPlan{index: sf.Index, typ: sf.Type, node: node})
		return nil
	}
	for _, f := range e.fields {
		sf, _ := st.FieldByName(f.name)
		if err := plan(sf, f.opts); err != nil {
			return err
		}
	}
	if e.tagged {
		for _, sf := range reflect.VisibleFields(st) {
			tag, ok := sf.Tag.Lookup("inject")
			if !ok || !sf.IsExported() {
				continue
			}
			if err := plan(sf, parseInjectTag(tag)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *planner) planMethods(req request, n *planNode) error {
	rt := n.impl.Reflect()
	if rt == nil {
		return nil
	}
	for _, name := range n.export.methods {
		m, ok := methodOf(rt, name)
		if !ok {
			return errors.InvalidExport(fmt.Sprintf("%s has no method %s", rt, name)).WithChain(n.chain)
		}
		mp := methodPlan{name: name, typ: m.Type}
		// In(0) is the receiver.
		for i := 1; i < m.Type.NumIn(); i++ {
			arg, err := p.planMember(req, n, fmt.Sprintf("%s[%d]", name, i-1), m.Type.In(i), paramSpec{})
			if err != nil {
				return err
			}
			mp.args = append(mp.args, arg)
		}
		n.methods = append(n.methods, mp)
	}
	return nil
}

// planDecorators attaches the decorators registered for the requested type,
// lowest priority first so the last one applied is outermost.
func (p *planner) planDecorators(req request, n *planNode) error {
	c := p.reg.decorators[req.typ]
	if c == nil {
		return nil
	}
	decs := p.admitted(req, c.All(), nil)
	slices.Reverse(decs)
	for _, d := range decs {
		if d.export == n.export {
			continue
		}
		ft := d.fn.Type()
		target, _ := decoratedParam(ft, req.typ)
		dp := &decoratorPlan{
			export: d.export,
			fn:     d.fn,
			target: target,
			args:   make([]*planNode, ft.NumIn()),
			after:  d.export.afterLifestyle,
			chain:  req.chain.Append(errors.Frame{Type: d.export.impl.String()}),
		}
		holder := &planNode{impl: d.export.impl, key: n.key}
		for i := range ft.NumIn() {
			if i == target {
				continue
			}
			arg, err := p.planMember(req, holder, fmt.Sprintf("param[%d]", i), ft.In(i), newParamSpec(d.export.params[i]))
			if err != nil {
				return err
			}
			dp.args[i] = arg
		}
		if !dp.after {
			n.slot.decorated = req.typ
		}
		n.decorators = append(n.decorators, dp)
	}
	return nil
}

// planShape handles requests satisfied structurally: wrappers, factories
// and collections.
func (p *planner) planShape(req request) (*planNode, bool, error) {
	rt := req.typ.Reflect()
	if rt == nil {
		return nil, false, nil
	}
	if sh, ok := shapeOf(rt); ok {
		n, err := p.planWrapper(req, sh)
		return n, true, err
	}
	if inner, withErr, ok := factoryShape(rt); ok {
		return &planNode{
			kind:     nodeFactory,
			typ:      req.typ,
			goType:   rt,
			chain:    req.errorChain(),
			withErr:  withErr,
			innerKey: cacheKey{typ: typeref.For(inner), key: req.key, filter: req.filter},
		}, true, nil
	}
	if rt.Kind() == reflect.Slice {
		n, err := p.planAll(req, rt)
		return n, true, err
	}
	return nil, false, nil
}

func (p *planner) innerRequest(req request, rt reflect.Type) request {
	inner := req
	inner.typ = typeref.For(rt)
	inner.goType = rt
	inner.chain = req.chain.Append(errors.Frame{Type: req.typ.String()})
	inner.depth = req.depth + 1
	inner.optional = false
	inner.def = reflect.Value{}
	return inner
}

func (p *planner) planWrapper(req request, sh shape) (*planNode, error) {
	n := &planNode{
		kind:      nodeWrapper,
		typ:       req.typ,
		goType:    req.goType,
		shape:     sh,
		chain:     req.errorChain(),
		scopeName: req.scopeName,
	}
	if sh.wrapperKind() == wrapLazy {
		n.kind = nodeDeferred
		n.innerKey = cacheKey{typ: typeref.For(sh.innerType()), key: req.key, filter: req.filter}
		return n, nil
	}
	inner, err := p.plan(p.innerRequest(req, sh.innerType()))
	if err != nil {
		return nil, err
	}
	n.inner = inner
	return n, nil
}

// planAll plans every candidate of the element type, in resolution order.
// sliceType is nil for the untyped []any form.
func (p *planner) planAll(req request, sliceType reflect.Type) (*planNode, error) {
	elemTyp := req.typ
	var elemGo reflect.Type
	if sliceType != nil {
		elemGo = sliceType.Elem()
		elemTyp = typeref.For(elemGo)
	}
	innerTyp := elemTyp
	var sh shape
	factory, withErr := false, false
	if s, ok := shapeOf(elemGo); ok {
		sh = s
		innerTyp = typeref.For(s.innerType())
	} else if inner, we, ok := factoryShape(elemGo); ok {
		factory, withErr = true, we
		innerTyp = typeref.For(inner)
	}

	ireq := req
	ireq.all = false
	ireq.typ = innerTyp
	ireq.goType = innerTyp.Reflect()
	ireq.chain = req.chain.Append(errors.Frame{Type: "[]" + innerTyp.String()})
	ireq.depth = req.depth + 1

	pick := func(c *Collection[*Export]) ([]*Export, []any) { return p.choose(c, ireq), nil }
	if sh != nil && sh.wrapperKind() == wrapKeyed && req.key == nil {
		pick = func(c *Collection[*Export]) ([]*Export, []any) { return c.AllKeyed() }
	}
	cands, err := p.collect(ireq, pick)
	if err != nil && !errors.Is(err, errors.ErrCodeGenericConstraintUnsatisfied) {
		return nil, err
	}

	n := &planNode{kind: nodeSlice, typ: req.typ, goType: sliceType, chain: req.errorChain()}
	for i, cand := range cands {
		ereq := ireq
		ereq.member = fmt.Sprintf("[%d]", i)
		en, err := p.planExport(ereq, cand)
		if err != nil {
			return nil, err
		}
		switch {
		case sh != nil:
			en = &planNode{kind: nodeWrapper, typ: elemTyp, goType: elemGo, shape: sh, inner: en, chain: en.chain, scopeName: req.scopeName}
		case factory:
			en = &planNode{kind: nodeFactory, typ: elemTyp, goType: elemGo, inner: en, withErr: withErr, chain: en.chain}
		}
		n.elems = append(n.elems, en)
	}
	return n, nil
}
