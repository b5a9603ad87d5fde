package di

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/wirekit/config"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/observability"
)

type Repository interface {
	Name() string
}

type memRepo struct{ name string }

func (r *memRepo) Name() string { return r.name }

func newMemRepo() *memRepo { return &memRepo{name: "mem"} }

type sqlRepo struct{}

func (*sqlRepo) Name() string { return "sql" }

type Service struct {
	Repo Repository
}

func NewService(r Repository) *Service { return &Service{Repo: r} }

// closeLog records Close calls in order.
type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *closeLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

type Widget struct {
	name   string
	log    *closeLog
	closed atomic.Int32
}

func (w *Widget) Close() error {
	w.closed.Add(1)
	if w.log != nil {
		w.log.add(w.name)
	}
	return nil
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("boom") }

func newTestScope(t *testing.T, mutate ...func(*config.Config)) *Scope {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "disabled"
	for _, m := range mutate {
		m(cfg)
	}
	s, err := New(cfg, WithLogger(logger.Nop()), WithInstruments(observability.Nop()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustRegister(t *testing.T, s *Scope, exports ...*Export) {
	t.Helper()
	if err := s.Register(exports...); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}
