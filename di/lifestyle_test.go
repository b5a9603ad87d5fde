package di

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/typeref"
)

func TestLifestyle_TransientAndSingleton(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s,
		Constructor(newMemRepo),
		Constructor(func() *sqlRepo { return &sqlRepo{} }, WithLifestyle(Singleton)),
	)
	ctx := context.Background()
	child, err := s.BeginScope()
	if err != nil {
		t.Fatalf("BeginScope failed: %v", err)
	}

	if MustResolve[*memRepo](ctx, s) == MustResolve[*memRepo](ctx, s) {
		t.Error("transient should build a new instance each time")
	}
	if MustResolve[*sqlRepo](ctx, s) != MustResolve[*sqlRepo](ctx, child) {
		t.Error("singleton should be shared across scopes")
	}
}

func TestLifestyle_SingletonPerScope(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s, Constructor(newMemRepo, WithLifestyle(SingletonPerScope)))
	ctx := context.Background()
	a, _ := s.BeginScope()
	b, _ := a.BeginScope()

	if MustResolve[*memRepo](ctx, a) != MustResolve[*memRepo](ctx, a) {
		t.Error("same scope should share the instance")
	}
	if MustResolve[*memRepo](ctx, a) == MustResolve[*memRepo](ctx, b) {
		t.Error("child scope should get its own instance")
	}
}

type graphRoot struct {
	left, right *graphLeaf
}

type graphLeaf struct{ repo *memRepo }

func TestLifestyle_SingletonPerObjectGraph(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s,
		Constructor(newMemRepo, WithLifestyle(SingletonPerObjectGraph)),
		Constructor(func(r *memRepo) *graphLeaf { return &graphLeaf{repo: r} }),
		Constructor(func(l, r *graphLeaf) *graphRoot { return &graphRoot{left: l, right: r} }),
	)
	ctx := context.Background()

	g1 := MustResolve[*graphRoot](ctx, s)
	g2 := MustResolve[*graphRoot](ctx, s)
	if g1.left.repo != g1.right.repo {
		t.Error("one resolution should share the instance")
	}
	if g1.left.repo == g2.left.repo {
		t.Error("separate resolutions should not share the instance")
	}
}

func TestLifestyle_SingletonPerNamedScope(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s, Constructor(newMemRepo, WithLifestyle(SingletonPerNamedScope("request"))))
	ctx := context.Background()

	if _, err := Resolve[*memRepo](ctx, s); !errors.Is(err, errors.ErrCodeNamedScopeNotFound) {
		t.Fatalf("expected NAMED_SCOPE_NOT_FOUND, got %v", err)
	}

	req, _ := s.BeginScope(ScopeName("request"))
	inner1, _ := req.BeginScope()
	inner2, _ := req.BeginScope()
	if MustResolve[*memRepo](ctx, inner1) != MustResolve[*memRepo](ctx, inner2) {
		t.Error("scopes under the same named scope should share the instance")
	}
	other, _ := s.BeginScope(ScopeName("request"))
	if MustResolve[*memRepo](ctx, other) == MustResolve[*memRepo](ctx, inner1) {
		t.Error("different named scopes should not share the instance")
	}
}

func TestLifestyle_WeakSingleton(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s,
		Constructor(newMemRepo, WithLifestyle(WeakSingleton)),
		Constructor(func() handler { return handler("v") }, WithLifestyle(WeakSingleton)),
	)
	ctx := context.Background()

	a := MustResolve[*memRepo](ctx, s)
	runtime.GC()
	b := MustResolve[*memRepo](ctx, s)
	if a != b {
		t.Error("a live weak singleton should be reused")
	}
	runtime.KeepAlive(a)

	if MustResolve[handler](ctx, s) != "v" {
		t.Error("non-pointer weak singletons are held strongly")
	}
}

type counted struct {
	id     int64
	closed *atomic.Int64
}

func (c *counted) Close() error {
	c.closed.Add(1)
	return nil
}

func TestLifestyle_SingletonConcurrent(t *testing.T) {
	s := newTestScope(t)
	var built, closed atomic.Int64
	start := make(chan struct{})
	mustRegister(t, s, Constructor(func() *counted {
		<-start
		return &counted{id: built.Add(1), closed: &closed}
	}, WithLifestyle(Singleton)))

	ctx := context.Background()
	results := make([]*counted, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MustResolve[*counted](ctx, s)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, r := range results {
		if r != results[0] {
			t.Fatal("all callers should observe the published instance")
		}
	}
	if got := built.Load() - closed.Load(); got != 1 {
		t.Errorf("every losing construction should be disposed, %d remain", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Load() != built.Load() {
		t.Error("the published instance should be disposed with the root")
	}
}

func TestLifestyle_SingletonResolvesAgainstRoot(t *testing.T) {
	s := newTestScope(t)
	mustRegister(t, s,
		Constructor(newMemRepo, WithLifestyle(SingletonPerScope)),
		Constructor(func(r *memRepo) *graphLeaf { return &graphLeaf{repo: r} }, WithLifestyle(Singleton)),
	)
	ctx := context.Background()
	child, _ := s.BeginScope()

	leaf := MustResolve[*graphLeaf](ctx, child)
	if leaf.repo != MustResolve[*memRepo](ctx, s) {
		t.Error("singleton dependencies should come from the root scope")
	}
}

func TestLifestyle_RootSharedIgnoresChildOverrides(t *testing.T) {
	repo := typeref.Of[Repository]()
	for _, l := range []Lifestyle{Singleton, WeakSingleton} {
		t.Run(l.String(), func(t *testing.T) {
			s := newTestScope(t)
			mustRegister(t, s,
				Constructor(newMemRepo, As(repo)),
				Constructor(NewService, WithLifestyle(l)),
			)
			child, err := s.BeginScope()
			if err != nil {
				t.Fatalf("BeginScope failed: %v", err)
			}
			mustRegister(t, child, Constructor(func() *sqlRepo { return &sqlRepo{} }, As(repo)))
			ctx := context.Background()

			fromChild := MustResolve[*Service](ctx, child)
			if fromChild.Repo.Name() != "mem" {
				t.Errorf("shared instance captured the child override %q", fromChild.Repo.Name())
			}
			if MustResolve[*Service](ctx, s) != fromChild {
				t.Error("root and child should share one instance")
			}
			if r := MustResolve[Repository](ctx, child); r.Name() != "sql" {
				t.Errorf("child override should still serve direct requests, got %q", r.Name())
			}
		})
	}
}

func TestLifestyle_String(t *testing.T) {
	cases := map[Lifestyle]string{
		Transient:                   "transient",
		Singleton:                   "singleton",
		SingletonPerScope:           "singleton-per-scope",
		SingletonPerObjectGraph:     "singleton-per-object-graph",
		WeakSingleton:               "weak-singleton",
		SingletonPerNamedScope("x"): "singleton-per-named-scope(x)",
	}
	for l, want := range cases {
		if l.String() != want {
			t.Errorf("String() = %q, want %q", l.String(), want)
		}
	}
}
