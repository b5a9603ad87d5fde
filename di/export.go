package di

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/typeref"
	"github.com/kbukum/wirekit/validation"
)

var errorType = reflect.TypeFor[error]()

type exportKind int

const (
	kindConstructor exportKind = iota
	kindInstance
	kindOpenGeneric
	kindConcrete
)

func (k exportKind) String() string {
	switch k {
	case kindConstructor:
		return "constructor"
	case kindInstance:
		return "instance"
	case kindOpenGeneric:
		return "open-generic"
	default:
		return "concrete"
	}
}

// ClosingFunc returns the constructor for one closed instance of an open
// generic export. closed carries the inferred type arguments.
type ClosingFunc func(closed typeref.Type) (constructor any, err error)

// Export describes one way to produce instances. It is immutable once
// registered; Register stores its own copy.
type Export struct {
	kind     exportKind
	fn       reflect.Value
	value    reflect.Value
	impl     typeref.Type
	open     *typeref.Definition
	closer   ClosingFunc
	closedOf *Export

	as       []typeref.Type
	asOpen   []*typeref.Definition
	key      any
	anyKey   bool
	priority int

	lifestyle       Lifestyle
	externallyOwned bool
	conditions      []Condition
	metadata        Metadata
	params          map[int][]ParamOption
	fields          []fieldSpec
	tagged          bool
	methods         []string
	cleanup         func(any) error
	afterLifestyle  bool

	seq    uint64
	atRoot bool // registered on a root scope
	err    error
}

type fieldSpec struct {
	name string
	opts []ParamOption
}

// ExportOption configures an Export.
type ExportOption func(*Export)

// Constructor describes an export built by calling fn, a function of the
// form func(deps...) T or func(deps...) (T, error). Without As, the export
// is registered under T.
func Constructor(fn any, opts ...ExportOption) *Export {
	e := &Export{kind: kindConstructor, lifestyle: Transient}
	v := reflect.ValueOf(fn)
	switch {
	case fn == nil || v.Kind() != reflect.Func:
		e.err = errors.InvalidExport(fmt.Sprintf("constructor must be a function, got %T", fn))
	case v.IsNil():
		e.err = errors.InvalidExport("constructor must not be nil")
	default:
		e.fn = v
		if t := v.Type(); t.NumOut() > 0 {
			e.impl = typeref.For(t.Out(0))
		}
	}
	return e.apply(opts)
}

// Instance describes an export that always yields v. Instances are owned by
// the caller and never disposed by the engine.
func Instance(v any, opts ...ExportOption) *Export {
	e := &Export{kind: kindInstance, lifestyle: Singleton, externallyOwned: true}
	if v == nil {
		e.err = errors.InvalidExport("instance must not be nil")
	} else {
		e.value = reflect.ValueOf(v)
		e.impl = typeref.For(e.value.Type())
	}
	return e.apply(opts)
}

// OpenGeneric describes an export for every closable instance of def.
// closer supplies the constructor for each closed instance. Use AsOpen to
// export it under the open interfaces def implements.
func OpenGeneric(def *typeref.Definition, closer ClosingFunc, opts ...ExportOption) *Export {
	e := &Export{kind: kindOpenGeneric, lifestyle: Transient, open: def, closer: closer}
	if def == nil || closer == nil {
		e.err = errors.InvalidExport("open generic export needs a definition and a closing function")
	}
	return e.apply(opts)
}

func (e *Export) apply(opts []ExportOption) *Export {
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// As adds exported types.
func As(types ...typeref.Type) ExportOption {
	return func(e *Export) { e.as = append(e.as, types...) }
}

// AsOpen exports an open generic under open definitions it implements.
func AsOpen(defs ...*typeref.Definition) ExportOption {
	return func(e *Export) { e.asOpen = append(e.asOpen, defs...) }
}

// WithKey registers the export in the keyed collection under key.
func WithKey(key any) ExportOption {
	return func(e *Export) { e.key = key }
}

// WithAnyKey makes the export answer keyed requests for any key without a
// dedicated keyed export.
func WithAnyKey() ExportOption {
	return func(e *Export) { e.anyKey = true }
}

// WithPriority sets the priority; higher wins.
func WithPriority(p int) ExportOption {
	return func(e *Export) { e.priority = p }
}

// WithLifestyle sets the lifestyle. The default is Transient.
func WithLifestyle(l Lifestyle) ExportOption {
	return func(e *Export) { e.lifestyle = l }
}

// ExternallyOwned stops the engine from disposing instances of the export.
func ExternallyOwned() ExportOption {
	return func(e *Export) { e.externallyOwned = true }
}

// When adds conditions; all must hold for the export to be a candidate.
func When(conds ...Condition) ExportOption {
	return func(e *Export) { e.conditions = append(e.conditions, conds...) }
}

// WithMetadata appends an ordered metadata entry.
func WithMetadata(key string, value any) ExportOption {
	return func(e *Export) { e.metadata = e.metadata.with(key, value) }
}

// WithParam overrides how constructor parameter index is satisfied.
func WithParam(index int, opts ...ParamOption) ExportOption {
	return func(e *Export) {
		if e.params == nil {
			e.params = make(map[int][]ParamOption)
		}
		e.params[index] = append(e.params[index], opts...)
	}
}

// InjectField sets the named exported struct field after construction.
func InjectField(name string, opts ...ParamOption) ExportOption {
	return func(e *Export) { e.fields = append(e.fields, fieldSpec{name: name, opts: opts}) }
}

// InjectTagged sets every struct field carrying an `inject` tag after
// construction. The tag accepts "optional" and "key=<name>".
func InjectTagged() ExportOption {
	return func(e *Export) { e.tagged = true }
}

// CallMethod calls the named method after construction, resolving its
// arguments. A trailing error result fails the construction.
func CallMethod(name string) ExportOption {
	return func(e *Export) { e.methods = append(e.methods, name) }
}

// OnDispose registers a cleanup run before the instance is closed when its
// owning scope is disposed.
func OnDispose(fn func(instance any) error) ExportOption {
	return func(e *Export) { e.cleanup = fn }
}

// ApplyAfterLifestyle makes a decorator wrap the cached instance on every
// resolution instead of being cached with it.
func ApplyAfterLifestyle() ExportOption {
	return func(e *Export) { e.afterLifestyle = true }
}

// Types returns the exported types.
func (e *Export) Types() []typeref.Type {
	if len(e.as) > 0 {
		return append([]typeref.Type(nil), e.as...)
	}
	if e.impl.IsZero() {
		return nil
	}
	return []typeref.Type{e.impl}
}

// Implementation returns the produced type, or the zero Type for open generics.
func (e *Export) Implementation() typeref.Type { return e.impl }

// Key returns the export key, or nil.
func (e *Export) Key() any { return e.key }

// Priority returns the export priority.
func (e *Export) Priority() int { return e.priority }

// Sequence returns the registration sequence number.
func (e *Export) Sequence() uint64 { return e.seq }

// Lifestyle returns the lifestyle.
func (e *Export) Lifestyle() Lifestyle { return e.lifestyle }

// Metadata returns the ordered metadata.
func (e *Export) Metadata() Metadata { return e.metadata }

// String describes the export for logs and errors.
func (e *Export) String() string {
	name := e.impl.String()
	if e.open != nil {
		name = e.open.String()
	}
	if e.key != nil {
		return fmt.Sprintf("%s(%s key=%v)", name, e.kind, e.key)
	}
	return fmt.Sprintf("%s(%s)", name, e.kind)
}

// validate checks the descriptor before registration.
func (e *Export) validate(decorator bool) error {
	if e.err != nil {
		return e.err
	}
	v := validation.New()
	v.NotNil("lifestyle", e.lifestyle)
	if e.key != nil {
		v.Custom(reflect.TypeOf(e.key).Comparable(), "key", fmt.Sprintf("type %T is not comparable", e.key))
	}
	for _, i := range slices.Sorted(maps.Keys(e.params)) {
		checkParamKey(v, fmt.Sprintf("param[%d]", i), e.params[i])
	}
	for _, f := range e.fields {
		checkParamKey(v, "inject_field."+f.name, f.opts)
	}
	if e.kind == kindConstructor {
		t := e.fn.Type()
		v.Custom(!t.IsVariadic(), "constructor", "must not be variadic")
		v.Custom(t.NumOut() == 1 || (t.NumOut() == 2 && t.Out(1) == errorType),
			"constructor", "must return T or (T, error)")
		for _, i := range slices.Sorted(maps.Keys(e.params)) {
			v.Custom(i >= 0 && i < t.NumIn(), "with_param",
				fmt.Sprintf("parameter index %d out of range for %d parameters", i, t.NumIn()))
		}
	}
	if e.kind != kindOpenGeneric {
		for _, as := range e.as {
			v.Custom(!as.IsZero(), "as", "exported type must be valid")
			if rt := as.Reflect(); rt != nil && e.impl.Reflect() != nil {
				v.Custom(e.impl.Reflect().AssignableTo(rt), "as",
					fmt.Sprintf("%s is not assignable to %s", e.impl, as))
			}
		}
		v.Custom(len(e.asOpen) == 0, "as_open", "only open generic exports can use AsOpen")
	} else {
		v.Custom(len(e.as) == 0, "as", "open generic exports use AsOpen")
	}
	if e.kind == kindInstance {
		v.Custom(len(e.params) == 0 && len(e.fields) == 0 && !e.tagged && len(e.methods) == 0,
			"instance", "instances cannot use injection options")
	}
	if e.afterLifestyle && !decorator {
		v.AddError("apply_after_lifestyle", "only decorators can apply after the lifestyle")
	}
	if rt := e.impl.Reflect(); rt != nil {
		for _, f := range e.fields {
			st := structOf(rt)
			if st == nil {
				v.AddError("inject_field", fmt.Sprintf("%s is not a struct", rt))
				continue
			}
			sf, ok := st.FieldByName(f.name)
			v.Custom(ok && sf.IsExported(), "inject_field", fmt.Sprintf("%s has no exported field %s", rt, f.name))
		}
		if e.tagged {
			v.Custom(structOf(rt) != nil, "inject_tagged", fmt.Sprintf("%s is not a struct", rt))
		}
		for _, m := range e.methods {
			_, ok := methodOf(rt, m)
			v.Custom(ok, "call_method", fmt.Sprintf("%s has no method %s", rt, m))
		}
	}
	if decorator {
		v.Custom(e.kind == kindConstructor, "decorator", "decorators must be constructors")
		if e.kind == kindConstructor {
			for _, as := range e.Types() {
				_, ok := decoratedParam(e.fn.Type(), as)
				v.Custom(ok, "decorator", fmt.Sprintf("needs a parameter of the decorated type %s", as))
			}
		}
	}
	return v.Validate(errors.ErrCodeInvalidExport)
}

// checkParamKey rejects override keys that cannot be used as map keys.
func checkParamKey(v *validation.Validator, field string, opts []ParamOption) {
	if key := newParamSpec(opts).key; key != nil {
		v.Custom(reflect.TypeOf(key).Comparable(), field, fmt.Sprintf("key type %T is not comparable", key))
	}
}

// structOf returns the struct type behind rt (or *rt), or nil.
func structOf(rt reflect.Type) reflect.Type {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}
	return rt
}

func methodOf(rt reflect.Type, name string) (reflect.Method, bool) {
	if m, ok := rt.MethodByName(name); ok {
		return m, true
	}
	if rt.Kind() != reflect.Pointer {
		return reflect.PointerTo(rt).MethodByName(name)
	}
	return reflect.Method{}, false
}

// decoratedParam finds the parameter of a decorator that receives the
// decorated instance.
func decoratedParam(fnType reflect.Type, decorated typeref.Type) (int, bool) {
	rt := decorated.Reflect()
	for i := 0; i < fnType.NumIn(); i++ {
		if rt != nil && fnType.In(i) == rt {
			return i, true
		}
	}
	if rt == nil && fnType.NumIn() > 0 {
		// Symbolic types bind to the first parameter.
		return 0, true
	}
	return -1, false
}

// parseInjectTag parses `inject:"optional,key=primary"`.
func parseInjectTag(tag string) []ParamOption {
	var opts []ParamOption
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "optional":
			opts = append(opts, Optional())
		case strings.HasPrefix(part, "key="):
			opts = append(opts, ParamKey(strings.TrimPrefix(part, "key=")))
		}
	}
	return opts
}
