package lisp

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var subrLog = commonlog.GetLogger("remacs.subr")

// State is a descriptor's lifecycle position.
type State int32

const (
	Unregistered State = iota
	Registered
	Invoked
	Exited
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Invoked:
		return "invoked"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ParamKind says how an argument is bound.
type ParamKind uint8

const (
	Required ParamKind = iota
	OptionalArg
	RestArg
)

// Param is a type-erased projection used to check one argument.
type Param struct {
	expected string
	project  func(*Env, Object) (any, error)
}

// ParamOf erases p for use in a Descriptor.
func ParamOf[T any](p Projection[T]) Param {
	return Param{
		expected: p.Expected(),
		project: func(env *Env, o Object) (any, error) {
			return p.Project(env, o)
		},
	}
}

// Expected returns the host predicate the parameter checks.
func (p Param) Expected() string {
	return p.expected
}

// ParamInfo describes one declared argument.
type ParamInfo struct {
	Name     string
	Expected string
	Kind     ParamKind
}

type paramSpec struct {
	ParamInfo
	p Param
}

// ---------------------------------------------------------------------------
// Descriptor
// ---------------------------------------------------------------------------

// Descriptor is an exported primitive: its name, arity, documentation and
// the glue that validates arguments before running the body. Everything
// but the lifecycle state is fixed once built.
type Descriptor struct {
	name    string
	min     int
	max     int
	doc     string
	intspec *string
	params  []paramSpec
	rest    *paramSpec
	body    func(*Call) (Object, error)

	state atomic.Int32
	calls atomic.Uint64
}

func (d *Descriptor) Name() string    { return d.name }
func (d *Descriptor) MinArgs() int    { return d.min }
func (d *Descriptor) MaxArgs() int    { return d.max }
func (d *Descriptor) Doc() string     { return d.doc }
func (d *Descriptor) State() State    { return State(d.state.Load()) }
func (d *Descriptor) Calls() uint64   { return d.calls.Load() }
func (d *Descriptor) IsCommand() bool { return d.intspec != nil }

// IntSpec returns the interactive spec, if the primitive is a command.
func (d *Descriptor) IntSpec() (string, bool) {
	if d.intspec == nil {
		return "", false
	}
	return *d.intspec, true
}

// Params lists the declared arguments, the rest argument last.
func (d *Descriptor) Params() []ParamInfo {
	out := make([]ParamInfo, 0, len(d.params)+1)
	for _, p := range d.params {
		out = append(out, p.ParamInfo)
	}
	if d.rest != nil {
		out = append(out, d.rest.ParamInfo)
	}
	return out
}

// Usage renders the calling convention the way the host's help does,
// e.g. "(secure-hash ALGORITHM OBJECT &optional START END BINARY)".
func (d *Descriptor) Usage() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(d.name)
	optional := false
	for _, p := range d.params {
		if p.Kind == OptionalArg && !optional {
			b.WriteString(" &optional")
			optional = true
		}
		b.WriteString(" ")
		b.WriteString(p.Name)
	}
	if d.rest != nil {
		b.WriteString(" &rest ")
		b.WriteString(d.rest.Name)
	}
	b.WriteString(")")
	return b.String()
}

func (d *Descriptor) String() string {
	return d.Usage()
}

// ---------------------------------------------------------------------------
// Call: the validated argument frame seen by a body
// ---------------------------------------------------------------------------

// Call is the argument frame of one invocation. Declared arguments have
// already been projected when the body runs.
type Call struct {
	Env   *Env
	Scope *Scope

	desc *Descriptor
	args []Object
	vals []any
	rest []any
}

// Descriptor returns the primitive being invoked.
func (c *Call) Descriptor() *Descriptor { return c.desc }

// NArgs returns how many arguments the caller passed.
func (c *Call) NArgs() int { return len(c.args) }

// Raw returns argument i unprojected, or nil when it was not passed.
func (c *Call) Raw(i int) Object {
	if i < 0 || i >= len(c.args) {
		return Nil
	}
	return c.args[i]
}

// Supplied reports whether argument i was passed as something other than
// nil. Absent and nil optionals are the same thing to the host.
func (c *Call) Supplied(i int) bool {
	return i >= 0 && i < len(c.args) && !c.args[i].IsNil()
}

// Arg returns declared argument i projected to T. Absent optionals yield
// the zero T.
func Arg[T any](c *Call, i int) T {
	var zero T
	if i < 0 || i >= len(c.vals) || c.vals[i] == nil {
		return zero
	}
	v, ok := c.vals[i].(T)
	if !ok {
		panic(fmt.Sprintf("%s: argument %d is %T, not %T", c.desc.name, i, c.vals[i], zero))
	}
	return v
}

// RestArgs returns the &rest arguments projected to T.
func RestArgs[T any](c *Call) []T {
	out := make([]T, len(c.rest))
	for i, v := range c.rest {
		out[i] = v.(T)
	}
	return out
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder assembles a Descriptor. Errors are collected and reported by Body.
type Builder struct {
	d         *Descriptor
	unevalled bool
	err       error
}

// Defun starts a primitive named name.
func Defun(name string) *Builder {
	b := &Builder{d: &Descriptor{name: name}}
	if name == "" {
		b.err = errors.New("defun: empty name")
	}
	return b
}

// Doc sets the docstring.
func (b *Builder) Doc(doc string) *Builder {
	b.d.doc = doc
	return b
}

// Interactive marks the primitive as a command with the given spec.
func (b *Builder) Interactive(spec string) *Builder {
	b.d.intspec = &spec
	return b
}

func (b *Builder) add(name string, p Param, kind ParamKind) *Builder {
	if b.err != nil {
		return b
	}
	if p.project == nil {
		b.err = fmt.Errorf("defun %s: parameter %s has no projection", b.d.name, name)
		return b
	}
	if b.d.rest != nil || b.unevalled {
		b.err = fmt.Errorf("defun %s: parameter %s after &rest", b.d.name, name)
		return b
	}
	if kind == Required && len(b.d.params) > b.d.min {
		b.err = fmt.Errorf("defun %s: required parameter %s after &optional", b.d.name, name)
		return b
	}
	ps := paramSpec{ParamInfo: ParamInfo{Name: strings.ToUpper(name), Expected: p.expected, Kind: kind}, p: p}
	switch kind {
	case Required:
		b.d.params = append(b.d.params, ps)
		b.d.min++
	case OptionalArg:
		b.d.params = append(b.d.params, ps)
	case RestArg:
		b.d.rest = &ps
	}
	return b
}

// Arg declares a required argument.
func (b *Builder) Arg(name string, p Param) *Builder {
	return b.add(name, p, Required)
}

// Optional declares an &optional argument.
func (b *Builder) Optional(name string, p Param) *Builder {
	return b.add(name, p, OptionalArg)
}

// Rest declares the &rest argument.
func (b *Builder) Rest(name string, p Param) *Builder {
	return b.add(name, p, RestArg)
}

// Unevalled makes a special form: the body receives the unevaluated
// argument list as its only raw argument.
func (b *Builder) Unevalled() *Builder {
	if len(b.d.params) > 0 || b.d.rest != nil {
		b.err = fmt.Errorf("defun %s: special forms take no declared parameters", b.d.name)
	}
	b.unevalled = true
	return b
}

// Body finishes the descriptor.
func (b *Builder) Body(fn func(c *Call) (Object, error)) (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	if fn == nil {
		return nil, fmt.Errorf("defun %s: no body", b.d.name)
	}
	d := b.d
	switch {
	case b.unevalled:
		d.max = Unevalled
	case d.rest != nil:
		d.max = Many
	default:
		d.max = len(d.params)
	}
	d.body = fn
	return d, nil
}

// MustBody is Body that panics on a malformed declaration. For use in
// package-level registration tables.
func (b *Builder) MustBody(fn func(c *Call) (Object, error)) *Descriptor {
	d, err := b.Body(fn)
	if err != nil {
		panic(err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Arity-specialised constructors
// ---------------------------------------------------------------------------

// argName derives an argument name from the predicate it checks:
// stringp gives STRING, natnump gives NATNUM, t gives OBJECT.
func argName(expected string, i int, taken map[string]bool) string {
	name := strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(expected, "p"), "-"))
	if expected == "t" || name == "" {
		name = "OBJECT"
	}
	if taken[name] {
		name = fmt.Sprintf("%s%d", name, i+1)
	}
	taken[name] = true
	return name
}

func result[R any](c *Call, ret Projection[R], v R, err error) (Object, error) {
	if err != nil {
		return Nil, err
	}
	return ret.Inject(c.Env, v)
}

// Defun0 exports a function of no arguments.
func Defun0[R any](name, doc string, ret Projection[R], fn func(env *Env) (R, error)) *Descriptor {
	return Defun(name).Doc(doc).MustBody(func(c *Call) (Object, error) {
		v, err := fn(c.Env)
		return result(c, ret, v, err)
	})
}

// Defun1 exports a function of one checked argument.
func Defun1[A, R any](name, doc string, a Projection[A], ret Projection[R], fn func(env *Env, a A) (R, error)) *Descriptor {
	taken := map[string]bool{}
	return Defun(name).Doc(doc).
		Arg(argName(a.Expected(), 0, taken), ParamOf(a)).
		MustBody(func(c *Call) (Object, error) {
			v, err := fn(c.Env, Arg[A](c, 0))
			return result(c, ret, v, err)
		})
}

// Defun2 exports a function of two checked arguments.
func Defun2[A, B, R any](name, doc string, a Projection[A], b Projection[B], ret Projection[R], fn func(env *Env, a A, b B) (R, error)) *Descriptor {
	taken := map[string]bool{}
	return Defun(name).Doc(doc).
		Arg(argName(a.Expected(), 0, taken), ParamOf(a)).
		Arg(argName(b.Expected(), 1, taken), ParamOf(b)).
		MustBody(func(c *Call) (Object, error) {
			v, err := fn(c.Env, Arg[A](c, 0), Arg[B](c, 1))
			return result(c, ret, v, err)
		})
}

// Defun3 exports a function of three checked arguments.
func Defun3[A, B, C, R any](name, doc string, a Projection[A], b Projection[B], cp Projection[C], ret Projection[R], fn func(env *Env, a A, b B, c C) (R, error)) *Descriptor {
	taken := map[string]bool{}
	return Defun(name).Doc(doc).
		Arg(argName(a.Expected(), 0, taken), ParamOf(a)).
		Arg(argName(b.Expected(), 1, taken), ParamOf(b)).
		Arg(argName(cp.Expected(), 2, taken), ParamOf(cp)).
		MustBody(func(c *Call) (Object, error) {
			v, err := fn(c.Env, Arg[A](c, 0), Arg[B](c, 1), Arg[C](c, 2))
			return result(c, ret, v, err)
		})
}

// ---------------------------------------------------------------------------
// Invocation glue
// ---------------------------------------------------------------------------

// Invoke runs the primitive on args: arity check, positional projection,
// body, result injection. The body never runs when the first two fail.
// Panics in projections or the body become error signals, except fatal ones
// which abort.
func (d *Descriptor) Invoke(env *Env, args []Object) (res Object, err error) {
	if d.State() == Unregistered {
		panic(fmt.Sprintf("invoking unregistered primitive %s", d.name))
	}
	if env.detached.Load() {
		return Nil, ErrDetached
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, ok := r.(*FatalError); ok {
			panic(fe)
		}
		if e, ok := r.(error); ok && isFatal(e) {
			Fatal(e)
		}
		subrLog.Errorf("panic in %s: %v", d.name, r)
		res, err = Nil, &Signal{Symbol: "error", Data: []Datum{fmt.Sprintf("%s: internal error: %v", d.name, r)}}
	}()

	n := len(args)
	switch {
	case d.max == Unevalled:
		if n != 1 {
			return Nil, &WrongNumberOfArgumentsError{Name: d.name, Min: 1, Max: 1, Got: n}
		}
	case n < d.min || (d.max != Many && n > d.max):
		return Nil, &WrongNumberOfArgumentsError{Name: d.name, Min: d.min, Max: d.max, Got: n}
	}

	c := &Call{Env: env, desc: d, args: args, vals: make([]any, len(d.params))}
	for i, p := range d.params {
		if i >= n || (p.Kind == OptionalArg && args[i].IsNil()) {
			continue
		}
		v, perr := p.p.project(env, args[i])
		if perr != nil {
			return Nil, positioned(perr, i)
		}
		c.vals[i] = v
	}
	if d.rest != nil {
		for i := len(d.params); i < n; i++ {
			v, perr := d.rest.p.project(env, args[i])
			if perr != nil {
				return Nil, positioned(perr, i)
			}
			c.rest = append(c.rest, v)
		}
	}

	d.state.CompareAndSwap(int32(Registered), int32(Invoked))
	d.calls.Add(1)

	err = env.Protect(func(s *Scope) error {
		c.Scope = s
		var berr error
		res, berr = d.body(c)
		return berr
	})
	if err != nil {
		if isFatal(err) {
			Fatal(err)
		}
		return Nil, err
	}
	return res, nil
}

// positioned stamps a projection failure with the argument index.
func positioned(err error, i int) error {
	var tm *TypeMismatchError
	if errors.As(err, &tm) {
		cp := *tm
		cp.Position = i
		return &cp
	}
	return err
}

// record adapts d to the host dispatch table for env. Incoming words are
// validated before they become Objects; a malformed word aborts.
func (d *Descriptor) record(env *Env) SubrRecord {
	return SubrRecord{
		Name:    d.name,
		MinArgs: d.min,
		MaxArgs: d.max,
		Doc:     d.doc,
		IntSpec: d.intspec,
		Entry: func(ws []Word) (Word, *NonlocalExit) {
			args := make([]Object, len(ws))
			for i, w := range ws {
				o := adopt(w)
				if _, err := env.layout.Decode(o); err != nil {
					Fatal(fmt.Errorf("%s argument %d: %w", d.name, i, err))
				}
				args[i] = o
			}
			res, err := d.Invoke(env, args)
			if err != nil {
				return 0, env.NonlocalExit(err)
			}
			return res.w, nil
		},
	}
}
