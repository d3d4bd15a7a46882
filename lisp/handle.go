package lisp

// Handle is a natively held reference that survives collections. It owns
// one root token; many Handles may refer to the same host object.
type Handle struct {
	tok Token
}

// Hold roots o and returns a Handle for it.
func (e *Env) Hold(o Object) *Handle {
	return &Handle{tok: e.roots.Register(o)}
}

// Get returns the held value, or ErrRootReleased once released.
func (h *Handle) Get() (Object, error) {
	return h.tok.set.Get(h.tok)
}

// Set replaces the held value while keeping the same root.
func (h *Handle) Set(o Object) error {
	return h.tok.set.Update(h.tok, o)
}

// Release drops the root. A second Release returns ErrRootReleased.
func (h *Handle) Release() error {
	return h.tok.set.Release(h.tok)
}

// Live reports whether the handle still holds its root.
func (h *Handle) Live() bool {
	return h.tok.set.Live(h.tok)
}

// Clone registers a second root for the same value. The clone must be
// released separately.
func (h *Handle) Clone() (*Handle, error) {
	o, err := h.Get()
	if err != nil {
		return nil, err
	}
	return &Handle{tok: h.tok.set.Register(o)}, nil
}

// Token returns the root token behind the handle.
func (h *Handle) Token() Token {
	return h.tok
}

// ---------------------------------------------------------------------------
// Local: unrooted references checked against the collection epoch
// ---------------------------------------------------------------------------

// Local is an unrooted reference. It is only valid until the host's next
// collection; reading it afterwards panics with *StaleHandleError.
type Local struct {
	o     Object
	epoch uint64
	env   *Env
}

// Local stamps o with the current collection epoch.
func (e *Env) Local(o Object) Local {
	return Local{o: o, epoch: e.Epoch(), env: e}
}

// Get returns the value, panicking if a collection ran since it was taken.
// Immediates never go stale.
func (l Local) Get() Object {
	if l.o.IsImmediate() || l.o.IsNil() || l.env == nil {
		return l.o
	}
	if now := l.env.Epoch(); now != l.epoch {
		panic(&StaleHandleError{Value: l.o, Created: l.epoch, Now: now})
	}
	return l.o
}

// Valid reports whether Get would succeed.
func (l Local) Valid() bool {
	return l.o.IsImmediate() || l.o.IsNil() || l.env == nil || l.env.Epoch() == l.epoch
}
