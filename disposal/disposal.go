// Package disposal tracks instances owned by a scope and tears them down in
// reverse registration order.
package disposal

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
)

// Token identifies one tracked entry. The zero Token tracks nothing.
type Token uint64

type entry struct {
	token   Token
	value   any
	closer  io.Closer
	cleanup func() error
}

// Scope is an ordered list of disposables. It is safe for concurrent use.
type Scope struct {
	mu      sync.Mutex
	entries []entry
	next    Token
	closed  bool
	log     *logger.Logger
}

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scope) { s.log = l }
}

// New creates an empty disposal scope.
func New(opts ...Option) *Scope {
	s := &Scope{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track registers v for disposal. v is closed if it implements io.Closer;
// cleanup, when non-nil, runs first. Values with neither are not tracked and
// yield the zero Token. Tracking on a closed scope returns SCOPE_DISPOSED and
// leaves v untouched.
func (s *Scope) Track(v any, cleanup func() error) (Token, error) {
	c, _ := v.(io.Closer)
	if c == nil && cleanup == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.ScopeDisposed("")
	}
	s.next++
	s.entries = append(s.entries, entry{token: s.next, value: v, closer: c, cleanup: cleanup})
	return s.next, nil
}

// Untrack removes the entry for t without closing it.
func (s *Scope) Untrack(t Token) bool {
	if t == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].token == t {
			s.entries = slices.Delete(s.entries, i, i+1)
			return true
		}
	}
	return false
}

// UntrackValue removes the most recent entry holding v. Values of
// non-comparable types are never matched.
func (s *Scope) UntrackValue(v any) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if sameValue(s.entries[i].value, v) {
			s.entries = slices.Delete(s.entries, i, i+1)
			return true
		}
	}
	return false
}

func sameValue(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// Len returns the number of tracked entries.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close disposes every tracked entry in reverse registration order, exactly
// once. A failing or panicking entry does not stop the sweep; all failures
// are returned together as a DISPOSAL_FAILED error. Later calls are no-ops.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := dispose(entries[i]); err != nil {
			s.log.Warn("disposal failed", logger.Fields(
				logger.FieldServiceType, fmt.Sprintf("%T", entries[i].value),
				logger.FieldError, err.Error(),
			))
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.DisposalFailed(len(errs), errors.Join(errs...))
}

// CloseEntries disposes the entries for tokens in reverse order without
// closing the scope. It is used to roll back a partially built graph.
func (s *Scope) CloseEntries(tokens []Token) error {
	var errs []error
	for i := len(tokens) - 1; i >= 0; i-- {
		e, ok := s.take(tokens[i])
		if !ok {
			continue
		}
		if err := dispose(e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.DisposalFailed(len(errs), errors.Join(errs...))
}

func (s *Scope) take(t Token) (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].token == t {
			e := s.entries[i]
			s.entries = slices.Delete(s.entries, i, i+1)
			return e, true
		}
	}
	return entry{}, false
}

func dispose(e entry) error {
	var errs []error
	if e.cleanup != nil {
		if err := guard(e.value, "cleanup", e.cleanup); err != nil {
			errs = append(errs, err)
		}
	}
	if e.closer != nil {
		if err := guard(e.value, "close", e.closer.Close); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func guard(v any, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %T: panic: %v", op, v, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s %T: %w", op, v, err)
	}
	return nil
}
