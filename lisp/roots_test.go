package lisp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/krobelus/remacs/heap"
	"github.com/krobelus/remacs/lisp"
)

// ---------------------------------------------------------------------------
// Root tokens
// ---------------------------------------------------------------------------

func TestReleaseTwice(t *testing.T) {
	rs := lisp.NewRootSet()
	tok := rs.Register(lisp.Nil)

	if err := rs.Release(tok); err != nil {
		t.Fatalf("first Release() = %v", err)
	}
	if err := rs.Release(tok); !errors.Is(err, lisp.ErrRootReleased) {
		t.Errorf("second Release() = %v, want ErrRootReleased", err)
	}
	st := rs.Stats()
	if st.Registered != 1 || st.Released != 1 || st.Live != 0 {
		t.Errorf("Stats() = %+v, want 1 registered, 1 released, 0 live", st)
	}

	other := lisp.NewRootSet()
	if err := other.Release(rs.Register(lisp.Nil)); !errors.Is(err, lisp.ErrRootReleased) {
		t.Errorf("Release of a foreign token = %v, want ErrRootReleased", err)
	}
	var zero lisp.Token
	if !zero.IsZero() {
		t.Error("zero Token should be IsZero")
	}
}

func TestHandleSurvivesCollection(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{})

	kept, _ := env.MakeString("kept")
	lost, _ := env.MakeString("lost")
	hk := env.Hold(kept)

	h.Collect()

	got, err := hk.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !h.IsLive(got.Word()) {
		t.Error("rooted string was collected")
	}
	if s, _ := lisp.TryProject(env, lisp.String, got); s != "kept" {
		t.Errorf("rooted string = %q, want kept", s)
	}
	if h.IsLive(lost.Word()) {
		t.Error("unrooted string survived a collection")
	}

	// Clones are separate roots on the same object.
	c, err := hk.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if err := hk.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := hk.Get(); !errors.Is(err, lisp.ErrRootReleased) {
		t.Errorf("Get after Release = %v, want ErrRootReleased", err)
	}
	h.Collect()
	if !h.IsLive(kept.Word()) {
		t.Error("clone did not keep the string alive")
	}
	if err := c.Release(); err != nil {
		t.Fatal(err)
	}
	h.Collect()
	if h.IsLive(kept.Word()) {
		t.Error("string survived after every root was released")
	}
}

func TestLocalGoesStale(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{})
	s, _ := env.MakeString("tmp")
	n, _ := env.Fixnum(3)
	ls := env.Local(s)
	ln := env.Local(n)

	if !ls.Valid() || ls.Get() != s {
		t.Fatal("fresh Local should be valid")
	}
	h.Collect()
	if ls.Valid() {
		t.Error("Local valid after a collection")
	}
	if !ln.Valid() || ln.Get() != n {
		t.Error("immediate Local should never go stale")
	}

	defer func() {
		r := recover()
		if _, ok := r.(*lisp.StaleHandleError); !ok {
			t.Errorf("recover() = %v, want *StaleHandleError", r)
		}
	}()
	ls.Get()
	t.Error("Get on a stale Local should panic")
}

// ---------------------------------------------------------------------------
// Scoped release
// ---------------------------------------------------------------------------

func TestScopeReleasesOnEveryPath(t *testing.T) {
	errEarly := errors.New("early")
	tests := []struct {
		name string
		body func(s *lisp.Scope) error
		err  error
		pnc  bool
	}{
		{"normal", func(s *lisp.Scope) error { return nil }, nil, false},
		{"early return", func(s *lisp.Scope) error { return errEarly }, errEarly, false},
		{"panic", func(s *lisp.Scope) error { panic("boom") }, nil, true},
	}

	for _, tt := range tests {
		_, env := newTestEnv(t, heap.Config{})
		o, _ := env.MakeString(tt.name)
		before := env.Roots().Stats()

		var inside lisp.RootStats
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil && !tt.pnc {
					t.Errorf("%s: unexpected panic %v", tt.name, r)
				}
			}()
			return env.Protect(func(s *lisp.Scope) error {
				s.Root(o)
				inside = env.Roots().Stats()
				return tt.body(s)
			})
		}()

		if !errors.Is(err, tt.err) {
			t.Errorf("%s: Protect() = %v, want %v", tt.name, err, tt.err)
		}
		if inside.Live != before.Live+1 {
			t.Errorf("%s: %d live roots inside, want %d", tt.name, inside.Live, before.Live+1)
		}
		after := env.Roots().Stats()
		if got := after.Released - before.Released; got != 1 {
			t.Errorf("%s: released %d times, want exactly 1", tt.name, got)
		}
		if after.Live != before.Live {
			t.Errorf("%s: %d live roots after, want %d", tt.name, after.Live, before.Live)
		}
	}
}

func TestScopeManualReleaseIsNotDoubled(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	before := env.Roots().Stats()
	_ = env.Protect(func(s *lisp.Scope) error {
		h := s.Hold(lisp.Nil)
		return h.Release()
	})
	if got := env.Roots().Stats().Released - before.Released; got != 1 {
		t.Errorf("released %d times, want 1", got)
	}
}

func TestScopeUnwindOrder(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	var order []int
	_ = env.Protect(func(s *lisp.Scope) error {
		for i := 0; i < 3; i++ {
			i := i
			s.Defer(func() { order = append(order, i) })
		}
		return nil
	})
	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("unwind order = %v, want [2 1 0]", order)
	}
}

// A primitive that allocates, roots, then fails: the object is still a
// live root when the failure is returned and released once the glue has
// unwound the scope.
func TestAllocateRootFail(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{Stress: true})

	var (
		allocated    lisp.Object
		rootedAtFail bool
		liveAtFail   bool
	)
	errBoom := errors.New("boom")
	d := lisp.Defun("allocate-then-fail").MustBody(func(c *lisp.Call) (lisp.Object, error) {
		o, err := c.Env.MakeString("scratch")
		if err != nil {
			return lisp.Nil, err
		}
		c.Scope.Root(o)
		allocated = o

		// Allocation under Stress collects; the rooted string must survive.
		if _, err := c.Env.MakeFloat(1); err != nil {
			return lisp.Nil, err
		}
		rootedAtFail = c.Env.Roots().Contains(o)
		liveAtFail = h.IsLive(o.Word())
		return lisp.Nil, errBoom
	})
	reg := installed(t, env, d)
	before := env.Roots().Stats()

	_, err := reg.Call(env, "allocate-then-fail")
	if !errors.Is(err, errBoom) {
		t.Fatalf("Call() = %v, want boom", err)
	}
	if !rootedAtFail || !liveAtFail {
		t.Errorf("at failure: rooted=%v live=%v, want both true", rootedAtFail, liveAtFail)
	}
	if env.Roots().Contains(allocated) {
		t.Error("root still registered after the scope exited")
	}
	after := env.Roots().Stats()
	if got := after.Released - before.Released; got != 1 {
		t.Errorf("released %d times, want 1", got)
	}

	h.Collect()
	if h.IsLive(allocated.Word()) {
		t.Error("string survived after its root was released")
	}
}

// An object rooted by the primitive and carried in its signal data must
// outlive the allocations that build the data list.
func TestSignalDataStaysRooted(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{Stress: true})
	d := lisp.Defun("fail-with-payload").MustBody(func(c *lisp.Call) (lisp.Object, error) {
		o, err := c.Env.MakeString("payload")
		if err != nil {
			return lisp.Nil, err
		}
		c.Scope.Root(o)
		return lisp.Nil, lisp.NewSignal("my-error", "message", o, lisp.Pair{Car: o, Cdr: 1})
	})
	installed(t, env, d)
	before := env.Roots().Stats()

	_, exit, err := h.Funcall("fail-with-payload")
	if err != nil {
		t.Fatal(err)
	}
	if exit == nil || exit.Symbol != "my-error" {
		t.Fatalf("exit = %+v, want my-error", exit)
	}
	want := `("message" "payload" ("payload" . 1))`
	if got := h.Format(exit.Data); got != want {
		t.Errorf("exit data = %s, want %s", got, want)
	}
	if after := env.Roots().Stats(); after.Live != before.Live {
		t.Errorf("%d live roots after the exit, want %d", after.Live, before.Live)
	}
}

func TestScopeUnwindSurvivesPanickingAction(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	o, _ := env.MakeString("kept")
	before := env.Roots().Stats()

	var ran []string
	func() {
		defer func() {
			if r := recover(); r != "unwind failed" {
				t.Errorf("recovered %v, want the unwind action's panic", r)
			}
		}()
		_ = env.Protect(func(s *lisp.Scope) error {
			s.Root(o)
			s.Defer(func() { ran = append(ran, "first") })
			s.Defer(func() { panic("unwind failed") })
			s.Defer(func() { ran = append(ran, "last") })
			return nil
		})
	}()

	if len(ran) != 2 || ran[0] != "last" || ran[1] != "first" {
		t.Errorf("unwind actions ran = %v, want [last first]", ran)
	}
	if after := env.Roots().Stats(); after.Live != before.Live {
		t.Errorf("%d live roots after a panicking unwind, want %d", after.Live, before.Live)
	}
	if env.Roots().Contains(o) {
		t.Error("root still registered after a panicking unwind")
	}
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

func TestRootAudit(t *testing.T) {
	rs := lisp.NewRootSet()
	a := lisp.NewRootAudit(rs, time.Hour, time.Millisecond)

	old := rs.Register(lisp.Nil)
	time.Sleep(5 * time.Millisecond)
	rs.Register(lisp.Nil)

	st := a.AuditNow()
	if st.Live != 2 {
		t.Errorf("Live = %d, want 2", st.Live)
	}
	if len(st.Suspects) != 1 {
		t.Fatalf("Suspects = %d, want 1", len(st.Suspects))
	}
	if a.AuditCount() != 1 || a.LastStats() != st {
		t.Error("AuditNow should update count and last stats")
	}

	_ = rs.Release(old)
	if st := a.AuditNow(); len(st.Suspects) != 0 {
		t.Errorf("after release Suspects = %d, want 0", len(st.Suspects))
	}
}

func TestRootAuditStartStop(t *testing.T) {
	a := lisp.NewRootAudit(lisp.NewRootSet(), 5*time.Millisecond, 0)
	a.Start()
	a.Start()
	time.Sleep(30 * time.Millisecond)
	a.Stop()
	a.Stop()

	if a.AuditCount() == 0 {
		t.Error("audit loop never ran")
	}
	n := a.AuditCount()
	time.Sleep(15 * time.Millisecond)
	if a.AuditCount() != n {
		t.Error("audit ran after Stop")
	}
}
