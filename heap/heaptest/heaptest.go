// Package heaptest provides a reference host with primitives installed,
// for tests of primitive libraries.
package heaptest

import (
	"testing"

	"github.com/krobelus/remacs/heap"
	"github.com/krobelus/remacs/lisp"
)

// Fixture is a heap with an attached Env and an installed registry.
type Fixture struct {
	T        testing.TB
	Heap     *heap.Heap
	Env      *lisp.Env
	Registry *lisp.Registry
}

// New boots a heap with cfg, registers ds, seals and installs.
func New(t testing.TB, cfg heap.Config, ds ...*lisp.Descriptor) *Fixture {
	t.Helper()
	h := heap.New(cfg)
	env, err := lisp.Attach(h)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}
	reg := lisp.NewRegistry()
	for _, d := range ds {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register(%s) error: %v", d.Name(), err)
		}
	}
	reg.Seal()
	if err := reg.Install(env); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	t.Cleanup(func() {
		reg.Shutdown()
		env.Detach()
	})
	return &Fixture{T: t, Heap: h, Env: env, Registry: reg}
}

// Call funcalls name through the host dispatch table and returns the
// printed result. A non-local exit is returned as is, with its data
// printed in the string.
func (f *Fixture) Call(name string, args ...lisp.Object) (string, *lisp.NonlocalExit) {
	f.T.Helper()
	ws := make([]lisp.Word, len(args))
	for i, a := range args {
		ws[i] = a.Word()
	}
	res, exit, err := f.Heap.Funcall(name, ws...)
	if err != nil {
		f.T.Fatalf("Funcall(%s) error: %v", name, err)
	}
	if exit != nil {
		return f.Heap.Format(exit.Data), exit
	}
	return f.Heap.Format(res), nil
}

// MustCall is Call that fails the test on a non-local exit.
func (f *Fixture) MustCall(name string, args ...lisp.Object) string {
	f.T.Helper()
	s, exit := f.Call(name, args...)
	if exit != nil {
		f.T.Fatalf("(%s ...) exited with %s %s", name, exit.Symbol, s)
	}
	return s
}

// Raw is like MustCall but returns the result object.
func (f *Fixture) Raw(name string, args ...lisp.Object) lisp.Object {
	f.T.Helper()
	d, err := f.Registry.Lookup(name)
	if err != nil {
		f.T.Fatal(err)
	}
	o, err := d.Invoke(f.Env, args)
	if err != nil {
		f.T.Fatalf("(%s ...) error: %v", name, err)
	}
	return o
}

// Str allocates a string.
func (f *Fixture) Str(s string) lisp.Object {
	f.T.Helper()
	o, err := f.Env.MakeString(s)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// Unibyte allocates a unibyte string.
func (f *Fixture) Unibyte(b []byte) lisp.Object {
	f.T.Helper()
	o, err := f.Env.MakeUnibyteString(b)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// Int makes a fixnum.
func (f *Fixture) Int(n int64) lisp.Object {
	f.T.Helper()
	o, err := f.Env.Fixnum(n)
	if err != nil {
		f.T.Fatal(err)
	}
	return o
}

// Sym interns a symbol.
func (f *Fixture) Sym(name string) lisp.Object {
	f.T.Helper()
	o, err := f.Env.Intern(name)
	if err != nil {
		f.T.Fatal(err)
	}
	return o
}

// List allocates a list.
func (f *Fixture) List(items ...lisp.Object) lisp.Object {
	f.T.Helper()
	o, err := f.Env.List(items...)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// Cons allocates a cons cell.
func (f *Fixture) Cons(car, cdr lisp.Object) lisp.Object {
	f.T.Helper()
	o, err := f.Env.Cons(car, cdr)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// Vector allocates a vector.
func (f *Fixture) Vector(items ...lisp.Object) lisp.Object {
	f.T.Helper()
	o, err := f.Env.MakeVector(items...)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// Float allocates a float.
func (f *Fixture) Float(x float64) lisp.Object {
	f.T.Helper()
	o, err := f.Env.MakeFloat(x)
	if err != nil {
		f.T.Fatal(err)
	}
	return f.keep(o)
}

// keep roots o for the rest of the test, so objects built one by one
// survive the allocations of the next.
func (f *Fixture) keep(o lisp.Object) lisp.Object {
	h := f.Env.Hold(o)
	f.T.Cleanup(func() { _ = h.Release() })
	return o
}

// String returns the Go string of a string object.
func (f *Fixture) String(o lisp.Object) string {
	f.T.Helper()
	s, err := lisp.TryProject(f.Env, lisp.String, o)
	if err != nil {
		f.T.Fatal(err)
	}
	return s
}

// Bytes returns the bytes of a string object.
func (f *Fixture) Bytes(o lisp.Object) []byte {
	f.T.Helper()
	b, err := lisp.TryProject(f.Env, lisp.Bytes, o)
	if err != nil {
		f.T.Fatal(err)
	}
	return b
}
