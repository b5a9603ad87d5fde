package errors

import (
	"fmt"
	"strings"
)

// Error is the unified engine error type.
type Error struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Chain is the dependency path from the requested type to the failure point.
	Chain Chain `json:"chain,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Chain) > 0 {
		b.WriteString(" [")
		b.WriteString(e.Chain.String())
		b.WriteString("]")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (cause: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithChain replaces the dependency chain and returns the receiver.
func (e *Error) WithChain(chain Chain) *Error {
	e.Chain = chain
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// --- Common Error Constructors ---

// MissingDependency creates an Error for a dependency that has no satisfying export.
func MissingDependency(typeName string, chain Chain) *Error {
	return &Error{
		Code: ErrCodeMissingDependency, Message: fmt.Sprintf("no export satisfies %s", typeName),
		Chain: chain, Details: map[string]any{"type": typeName},
	}
}

// AmbiguousExport creates an Error for two unkeyed exports tied on priority.
func AmbiguousExport(typeName string, priority int, chain Chain) *Error {
	return &Error{
		Code: ErrCodeAmbiguousExport, Message: fmt.Sprintf("more than one export of %s has priority %d", typeName, priority),
		Chain: chain, Details: map[string]any{"type": typeName, "priority": priority},
	}
}

// RecursionTooDeep creates an Error for a dependency chain deeper than maxDepth.
func RecursionTooDeep(maxDepth int, chain Chain) *Error {
	return &Error{
		Code: ErrCodeRecursionTooDeep, Message: fmt.Sprintf("dependency chain exceeded max depth %d", maxDepth),
		Chain: chain, Details: map[string]any{"max_depth": maxDepth},
	}
}

// GenericConstraintUnsatisfied creates an Error for a type argument rejected by a constraint.
func GenericConstraintUnsatisfied(param, constraint, argument string) *Error {
	return &Error{
		Code:    ErrCodeGenericConstraintUnsatisfied,
		Message: fmt.Sprintf("type argument %s does not satisfy %s constraint on %s", argument, constraint, param),
		Details: map[string]any{"param": param, "constraint": constraint, "argument": argument},
	}
}

// NamedScopeNotFound creates an Error for a missing named ancestor scope.
func NamedScopeNotFound(name string, chain Chain) *Error {
	return &Error{
		Code: ErrCodeNamedScopeNotFound, Message: fmt.Sprintf("no scope named %q in the scope chain", name),
		Chain: chain, Details: map[string]any{"scope_name": name},
	}
}

// ScopeDisposed creates an Error for an operation on a disposed scope.
func ScopeDisposed(scopeID string) *Error {
	return &Error{
		Code: ErrCodeScopeDisposed, Message: "scope has been disposed",
		Details: map[string]any{"scope_id": scopeID},
	}
}

// ConstructionFailed creates an Error for a constructor that returned an error or panicked.
func ConstructionFailed(typeName string, chain Chain, cause error) *Error {
	return &Error{
		Code: ErrCodeConstructionFailed, Message: fmt.Sprintf("constructing %s failed", typeName),
		Chain: chain, Details: map[string]any{"type": typeName}, Cause: cause,
	}
}

// DisposalFailed creates an Error aggregating the failures of a teardown sweep.
func DisposalFailed(failed int, cause error) *Error {
	return &Error{
		Code: ErrCodeDisposalFailed, Message: fmt.Sprintf("%d disposable(s) failed to close", failed),
		Details: map[string]any{"failed": failed}, Cause: cause,
	}
}

// InvalidExport creates an Error for a malformed export descriptor.
func InvalidExport(reason string) *Error {
	return &Error{Code: ErrCodeInvalidExport, Message: reason}
}

// InvalidConfig creates an Error for configuration that failed validation.
func InvalidConfig(message string) *Error {
	return &Error{Code: ErrCodeInvalidConfig, Message: message}
}
