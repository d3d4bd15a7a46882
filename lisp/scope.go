package lisp

// Scope collects roots and unwind actions for the duration of one block.
// Everything registered on a Scope is undone, last first, when the block
// exits: by returning, by returning an error, or by panicking.
type Scope struct {
	env    *Env
	unwind []func()
}

// Protect runs fn with a fresh Scope and unwinds it afterwards. The unwind
// runs after fn has returned, so values rooted in the scope are still alive
// at the point where fn reports failure.
func (e *Env) Protect(fn func(s *Scope) error) error {
	s := &Scope{env: e}
	defer s.unwindAll()
	return fn(s)
}

// WithRoot roots o for the duration of fn.
func WithRoot(env *Env, o Object, fn func(h *Handle) error) error {
	return env.Protect(func(s *Scope) error {
		return fn(s.Hold(o))
	})
}

// Env returns the environment the scope belongs to.
func (s *Scope) Env() *Env {
	return s.env
}

// Root registers o until the scope exits and returns o unchanged.
func (s *Scope) Root(o Object) Object {
	s.Hold(o)
	return o
}

// Hold registers o until the scope exits and returns its Handle.
func (s *Scope) Hold(o Object) *Handle {
	h := s.env.Hold(o)
	s.unwind = append(s.unwind, func() {
		// Already released by the caller is fine; never release twice.
		_ = h.Release()
	})
	return h
}

// Defer records an unwind action, run when the scope exits.
func (s *Scope) Defer(fn func()) {
	s.unwind = append(s.unwind, fn)
}

// unwindAll runs every action even when one panics; the first panic is
// raised again once all have run.
func (s *Scope) unwindAll() {
	var first any
	for i := len(s.unwind) - 1; i >= 0; i-- {
		if r := runUnwind(s.unwind[i]); r != nil && first == nil {
			first = r
		}
	}
	s.unwind = nil
	if first != nil {
		panic(first)
	}
}

func runUnwind(fn func()) (r any) {
	defer func() { r = recover() }()
	fn()
	return nil
}
