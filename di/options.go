package di

import (
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
)

type options struct {
	log  *logger.Logger
	inst *observability.Instruments
	name string
}

// Option configures a root scope.
type Option func(*options)

// WithLogger sets the logger. The default is built from the logging config.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithInstruments sets the tracing and metrics instruments. The default
// uses the otel global providers as switched on in the config.
func WithInstruments(inst *observability.Instruments) Option {
	return func(o *options) { o.inst = inst }
}

// WithName names the root scope.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

type scopeOptions struct {
	name  string
	extra map[string]any
}

// ScopeOption configures a child scope.
type ScopeOption func(*scopeOptions)

// ScopeName names the scope, making it a target for
// SingletonPerNamedScope.
func ScopeName(name string) ScopeOption {
	return func(o *scopeOptions) { o.name = name }
}

// ScopeExtraData stores extra data on the new scope.
func ScopeExtraData(key string, value any) ScopeOption {
	return func(o *scopeOptions) {
		if o.extra == nil {
			o.extra = make(map[string]any)
		}
		o.extra[key] = value
	}
}

type resolveOptions struct {
	key       any
	filter    *Filter
	extra     map[string]any
	scopeName string
}

// ResolveOption configures one resolution.
type ResolveOption func(*resolveOptions)

// ByKey resolves the export registered under key.
func ByKey(key any) ResolveOption {
	return func(o *resolveOptions) { o.key = key }
}

// Matching restricts candidates to those accepted by f.
func Matching(f *Filter) ResolveOption {
	return func(o *resolveOptions) { o.filter = f }
}

// WithExtraData passes call data readable through the InjectionContext.
func WithExtraData(key string, value any) ResolveOption {
	return func(o *resolveOptions) {
		if o.extra == nil {
			o.extra = make(map[string]any)
		}
		o.extra[key] = value
	}
}

// InScope names the child scopes created for Scoped wrappers.
func InScope(name string) ResolveOption {
	return func(o *resolveOptions) { o.scopeName = name }
}

func newResolveOptions(opts []ResolveOption) resolveOptions {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
