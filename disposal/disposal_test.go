package disposal

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/kbukum/wirekit/errors"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.order = append(r.order, name)
	r.mu.Unlock()
}

type widget struct {
	name string
	rec  *recorder
	err  error
	n    int
}

func (w *widget) Close() error {
	w.n++
	w.rec.add(w.name)
	return w.err
}

func TestClose_LIFOExactlyOnce(t *testing.T) {
	rec := &recorder{}
	s := New()
	ws := []*widget{{name: "a", rec: rec}, {name: "b", rec: rec}, {name: "c", rec: rec}}
	for _, w := range ws {
		if _, err := s.Track(w, nil); err != nil {
			t.Fatalf("Track failed: %v", err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	want := []string{"c", "b", "a"}
	if len(rec.order) != len(want) {
		t.Fatalf("order = %v, want %v", rec.order, want)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Fatalf("order = %v, want %v", rec.order, want)
		}
	}
	for _, w := range ws {
		if w.n != 1 {
			t.Errorf("%s closed %d times", w.name, w.n)
		}
	}
	if !s.Closed() || s.Len() != 0 {
		t.Error("scope should be closed and empty")
	}
}

func TestTrack_CleanupRunsBeforeClose(t *testing.T) {
	rec := &recorder{}
	s := New()
	w := &widget{name: "close", rec: rec}
	if _, err := s.Track(w, func() error { rec.add("cleanup"); return nil }); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if len(rec.order) != 2 || rec.order[0] != "cleanup" || rec.order[1] != "close" {
		t.Errorf("order = %v", rec.order)
	}
}

func TestTrack_NonDisposableIgnored(t *testing.T) {
	s := New()
	tok, err := s.Track(42, nil)
	if err != nil || tok != 0 || s.Len() != 0 {
		t.Errorf("non-disposable should not be tracked: tok=%d err=%v len=%d", tok, err, s.Len())
	}
	// A cleanup callback alone makes any value trackable.
	tok, _ = s.Track(42, func() error { return nil })
	if tok == 0 || s.Len() != 1 {
		t.Error("value with cleanup should be tracked")
	}
}

func TestTrack_AfterClose(t *testing.T) {
	s := New()
	_ = s.Close()
	w := &widget{name: "late", rec: &recorder{}}
	_, err := s.Track(w, nil)
	if !errors.Is(err, errors.ErrCodeScopeDisposed) {
		t.Errorf("expected SCOPE_DISPOSED, got %v", err)
	}
	if w.n != 0 {
		t.Error("Track must not close the value")
	}
}

func TestClose_AggregatesFailuresAndPanics(t *testing.T) {
	rec := &recorder{}
	s := New()
	boom := stderrors.New("boom")
	_, _ = s.Track(&widget{name: "first", rec: rec}, nil)
	_, _ = s.Track(&widget{name: "failing", rec: rec, err: boom}, nil)
	_, _ = s.Track(&widget{name: "panicking", rec: rec}, func() error { panic("bad cleanup") })
	_, _ = s.Track(&widget{name: "last", rec: rec}, nil)

	err := s.Close()
	if !errors.Is(err, errors.ErrCodeDisposalFailed) {
		t.Fatalf("expected DISPOSAL_FAILED, got %v", err)
	}
	if !stderrors.Is(err, boom) {
		t.Error("expected the close error to be reachable")
	}
	e, _ := errors.AsError(err)
	if e.Details["failed"] != 2 {
		t.Errorf("failed = %v, want 2", e.Details["failed"])
	}
	// Every closer still ran, including the one whose cleanup panicked.
	if len(rec.order) != 4 {
		t.Errorf("expected all 4 closers to run, got %v", rec.order)
	}
}

func TestUntrack(t *testing.T) {
	rec := &recorder{}
	s := New()
	a := &widget{name: "a", rec: rec}
	b := &widget{name: "b", rec: rec}
	tokA, _ := s.Track(a, nil)
	_, _ = s.Track(b, nil)

	if !s.Untrack(tokA) {
		t.Error("expected Untrack to find the token")
	}
	if s.Untrack(tokA) || s.Untrack(0) {
		t.Error("Untrack should report false for unknown tokens")
	}
	if !s.UntrackValue(b) {
		t.Error("expected UntrackValue to find b")
	}
	_ = s.Close()
	if len(rec.order) != 0 {
		t.Errorf("untracked values must not be closed, got %v", rec.order)
	}
}

func TestUntrackValue_NonComparable(t *testing.T) {
	s := New()
	v := []int{1}
	_, _ = s.Track(v, func() error { return nil })
	if s.UntrackValue(v) {
		t.Error("non-comparable values should never match")
	}
}

func TestCloseEntries_Rollback(t *testing.T) {
	rec := &recorder{}
	s := New()
	keep := &widget{name: "keep", rec: rec}
	_, _ = s.Track(keep, nil)
	t1, _ := s.Track(&widget{name: "t1", rec: rec}, nil)
	t2, _ := s.Track(&widget{name: "t2", rec: rec}, nil)

	if err := s.CloseEntries([]Token{t1, t2}); err != nil {
		t.Fatalf("CloseEntries: %v", err)
	}
	if len(rec.order) != 2 || rec.order[0] != "t2" || rec.order[1] != "t1" {
		t.Errorf("rollback order = %v", rec.order)
	}
	if s.Closed() || s.Len() != 1 {
		t.Error("rollback must leave the scope open with the remaining entry")
	}
}

func TestConcurrentTrack(t *testing.T) {
	s := New()
	rec := &recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Track(&widget{name: "w", rec: rec}, nil)
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", s.Len())
	}
	_ = s.Close()
	if len(rec.order) != 50 {
		t.Errorf("expected 50 closes, got %d", len(rec.order))
	}
}
