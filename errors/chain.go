package errors

import (
	stderrors "errors"
	"strings"
)

// Frame is one step of a dependency chain: the type being built and, when the
// step came from a constructor parameter, field or method, which member.
type Frame struct {
	Type   string `json:"type"`
	Member string `json:"member,omitempty"`
}

// String renders the frame as "Type" or "Type.member".
func (f Frame) String() string {
	if f.Member == "" {
		return f.Type
	}
	return f.Type + "." + f.Member
}

// Chain is an ordered dependency path, outermost request first.
type Chain []Frame

// String renders the chain as "A.param[0] -> B.Field -> C".
func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = f.String()
	}
	return strings.Join(parts, " -> ")
}

// Append returns a copy of the chain with f added at the end.
func (c Chain) Append(f Frame) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, f)
}

// Is reports whether err (or anything it wraps) is an Error with the given code.
func Is(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// AsError converts an error to an Error if possible.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// ChainOf returns the dependency chain carried by err, or nil.
func ChainOf(err error) Chain {
	if e, ok := AsError(err); ok {
		return e.Chain
	}
	return nil
}

// Join aggregates errors the same way the standard library does; it is
// re-exported so callers of this package do not need both imports.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
