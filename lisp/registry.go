package lisp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Variable is a host variable defined by the bridge. Its value is computed
// per host at install time and stays rooted until Shutdown.
type Variable struct {
	Name string
	Doc  string
	Init func(env *Env) (Object, error)
}

type installation struct {
	env  *Env
	vars []*Handle
}

// Registry collects primitive descriptors before the host starts calling
// them. Registration may happen from several init paths; Seal marks the
// point after which lookups are allowed.
type Registry struct {
	mu      sync.RWMutex
	subrs   map[string]*Descriptor
	vars    map[string]*Variable
	varList []string
	envs    []*installation

	sealed    atomic.Bool
	ready     chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subrs: make(map[string]*Descriptor),
		vars:  make(map[string]*Variable),
		ready: make(chan struct{}),
	}
}

// Register adds d. Registering the same descriptor twice is a no-op; a
// different descriptor with the same name replaces the old one, which
// becomes Unregistered. Replacement after Install is pushed to every host
// the registry was installed into.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.body == nil {
		return fmt.Errorf("register: incomplete descriptor")
	}

	r.mu.Lock()
	old := r.subrs[d.name]
	if old == d {
		r.mu.Unlock()
		return nil
	}
	if !d.state.CompareAndSwap(int32(Unregistered), int32(Registered)) {
		r.mu.Unlock()
		return fmt.Errorf("register %s: descriptor is %s", d.name, d.State())
	}
	r.subrs[d.name] = d
	envs := append([]*installation(nil), r.envs...)
	r.mu.Unlock()

	if old != nil {
		old.state.Store(int32(Unregistered))
		subrLog.Infof("replaced primitive %s", d.name)
	} else {
		subrLog.Debugf("registered primitive %s", d.Usage())
	}

	for _, in := range envs {
		if err := in.env.host.Defsubr(d.record(in.env)); err != nil {
			return fmt.Errorf("installing %s: %w", d.name, err)
		}
	}
	return nil
}

// MustRegister registers every descriptor, panicking on failure.
func (r *Registry) MustRegister(ds ...*Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// DefVar declares a host variable.
func (r *Registry) DefVar(v *Variable) error {
	if v == nil || v.Name == "" || v.Init == nil {
		return fmt.Errorf("defvar: incomplete variable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vars[v.Name]; !ok {
		r.varList = append(r.varList, v.Name)
	}
	r.vars[v.Name] = v
	return nil
}

// Seal marks registration complete and releases waiters. Replacement
// stays legal afterwards.
func (r *Registry) Seal() {
	r.closeOnce.Do(func() {
		r.sealed.Store(true)
		close(r.ready)
		subrLog.Infof("registry sealed with %d primitives", r.Len())
	})
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Ready is closed by Seal.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// WaitReady blocks until Seal or until ctx is done.
func (r *Registry) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of registered primitives.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subrs)
}

// Lookup finds a primitive by name. Before Seal it returns ErrNotReady.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	if !r.sealed.Load() {
		return nil, ErrNotReady
	}
	r.mu.RLock()
	d, ok := r.subrs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrimitive, name)
	}
	return d, nil
}

// Descriptors returns the registered primitives sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.subrs))
	for _, d := range r.subrs {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Variables returns the declared variables in declaration order.
func (r *Registry) Variables() []*Variable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Variable, len(r.varList))
	for i, name := range r.varList {
		out[i] = r.vars[name]
	}
	return out
}

// Install pushes every primitive and variable into env's host. The
// registry must be sealed.
func (r *Registry) Install(env *Env) error {
	if !r.sealed.Load() {
		return ErrNotReady
	}
	in := &installation{env: env}
	ds := r.Descriptors()
	for _, d := range ds {
		if err := env.host.Defsubr(d.record(env)); err != nil {
			return fmt.Errorf("installing %s: %w", d.name, err)
		}
	}
	for _, v := range r.Variables() {
		val, err := v.Init(env)
		if err != nil {
			return fmt.Errorf("initializing %s: %w", v.Name, err)
		}
		h := env.Hold(val)
		in.vars = append(in.vars, h)
		if err := env.host.Defvar(v.Name, v.Doc, val.w); err != nil {
			return fmt.Errorf("defining %s: %w", v.Name, err)
		}
	}

	r.mu.Lock()
	r.envs = append(r.envs, in)
	r.mu.Unlock()

	subrLog.Infof("installed %d primitives and %d variables", len(ds), len(in.vars))
	return nil
}

// Call invokes a registered primitive directly, bypassing the host
// dispatch table.
func (r *Registry) Call(env *Env, name string, args ...Object) (Object, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return Nil, err
	}
	return d.Invoke(env, args)
}

// Shutdown moves every descriptor to Exited and releases variable roots.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	envs := r.envs
	r.envs = nil
	for _, d := range r.subrs {
		d.state.Store(int32(Exited))
	}
	r.mu.Unlock()

	for _, in := range envs {
		for _, h := range in.vars {
			_ = h.Release()
		}
	}
}
