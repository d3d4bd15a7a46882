package lisp

import (
	"math/big"
)

// Projection is a checked conversion between host Objects and a Go type.
// Project never reinterprets: an Object of the wrong kind yields a
// *TypeMismatchError naming the host predicate in Expected.
type Projection[T any] interface {
	Expected() string
	Project(env *Env, o Object) (T, error)
	Inject(env *Env, v T) (Object, error)
}

// TryProject converts o with p.
func TryProject[T any](env *Env, p Projection[T], o Object) (T, error) {
	return p.Project(env, o)
}

// Inject converts v back into a host Object with p.
func Inject[T any](env *Env, p Projection[T], v T) (Object, error) {
	return p.Inject(env, v)
}

func mismatch(expected string, o Object) *TypeMismatchError {
	return &TypeMismatchError{Expected: expected, Found: o.Tag(), Value: o, Position: -1}
}

// Provided projections.
var (
	Any     Projection[Object]      = anyProj{}
	Fixnum  Projection[int64]       = fixnumProj{}
	Natnum  Projection[int64]       = natnumProj{}
	Integer Projection[*big.Int]    = integerProj{}
	Char    Projection[rune]        = charProj{}
	Float   Projection[float64]     = floatProj{}
	Number  Projection[float64]     = numberProj{}
	Bool    Projection[bool]        = boolProj{}
	Symbol  Projection[SymbolRef]   = symbolProj{}
	String  Projection[string]      = stringProj{}
	Bytes   Projection[[]byte]      = bytesProj{}
	Strings Projection[*StringView] = stringViewProj{}
	Cons    Projection[ConsRef]     = consProj{}
	List    Projection[[]Object]    = listProj{}
	Vector  Projection[*VectorView] = vectorProj{}
)

// ---------------------------------------------------------------------------

type anyProj struct{}

func (anyProj) Expected() string                         { return "t" }
func (anyProj) Project(_ *Env, o Object) (Object, error) { return o, nil }
func (anyProj) Inject(_ *Env, v Object) (Object, error)  { return v, nil }

// ---------------------------------------------------------------------------

type fixnumProj struct{}

func (fixnumProj) Expected() string { return "fixnump" }

func (fixnumProj) Project(env *Env, o Object) (int64, error) {
	n, ok := o.FixnumValue()
	if !ok {
		return 0, mismatch("fixnump", o)
	}
	return n, nil
}

func (fixnumProj) Inject(env *Env, v int64) (Object, error) {
	return env.layout.MakeFixnum(v)
}

type natnumProj struct{}

func (natnumProj) Expected() string { return "natnump" }

func (natnumProj) Project(env *Env, o Object) (int64, error) {
	n, ok := o.FixnumValue()
	if !ok || n < 0 {
		return 0, mismatch("natnump", o)
	}
	return n, nil
}

func (natnumProj) Inject(env *Env, v int64) (Object, error) {
	if v < 0 {
		return Nil, &RangeError{Op: "natnum", Value: v, Min: 0, Max: env.layout.MostPositiveFixnum()}
	}
	return env.layout.MakeFixnum(v)
}

// ---------------------------------------------------------------------------

type integerProj struct{}

func (integerProj) Expected() string { return "integerp" }

func (integerProj) Project(env *Env, o Object) (*big.Int, error) {
	if n, ok := o.FixnumValue(); ok {
		return big.NewInt(n), nil
	}
	if env.isBignum(o) {
		return env.bignumValue(o), nil
	}
	return nil, mismatch("integerp", o)
}

func (integerProj) Inject(env *Env, v *big.Int) (Object, error) {
	return env.MakeInteger(v)
}

// ---------------------------------------------------------------------------

type charProj struct{}

func (charProj) Expected() string { return "characterp" }

func (charProj) Project(env *Env, o Object) (rune, error) {
	n, ok := o.FixnumValue()
	if !ok || n < 0 || n > MaxChar {
		return 0, mismatch("characterp", o)
	}
	return rune(n), nil
}

func (charProj) Inject(env *Env, v rune) (Object, error) {
	if v < 0 || v > MaxChar {
		return Nil, &RangeError{Op: "char", Value: int64(v), Min: 0, Max: MaxChar}
	}
	return env.layout.Encode(ImmChar, int64(v))
}

// ---------------------------------------------------------------------------

type floatProj struct{}

func (floatProj) Expected() string { return "floatp" }

func (floatProj) Project(env *Env, o Object) (float64, error) {
	if !o.IsFloat() {
		return 0, mismatch("floatp", o)
	}
	return env.floatValue(o), nil
}

func (floatProj) Inject(env *Env, v float64) (Object, error) {
	return env.MakeFloat(v)
}

// numberProj accepts any number and widens to float64. Injection always
// produces a float, so it round-trips for floats only.
type numberProj struct{}

func (numberProj) Expected() string { return "numberp" }

func (numberProj) Project(env *Env, o Object) (float64, error) {
	if n, ok := o.FixnumValue(); ok {
		return float64(n), nil
	}
	if o.IsFloat() {
		return env.floatValue(o), nil
	}
	if env.isBignum(o) {
		f, _ := new(big.Float).SetInt(env.bignumValue(o)).Float64()
		return f, nil
	}
	return 0, mismatch("numberp", o)
}

func (numberProj) Inject(env *Env, v float64) (Object, error) {
	return env.MakeFloat(v)
}

// ---------------------------------------------------------------------------

type boolProj struct{}

func (boolProj) Expected() string                        { return "booleanp" }
func (boolProj) Project(_ *Env, o Object) (bool, error)  { return !o.IsNil(), nil }
func (boolProj) Inject(env *Env, v bool) (Object, error) { return env.Bool(v), nil }

// ---------------------------------------------------------------------------

// SymbolRef is a projected symbol: the object plus its name.
type SymbolRef struct {
	Object Object
	Name   string
}

type symbolProj struct{}

func (symbolProj) Expected() string { return "symbolp" }

func (symbolProj) Project(env *Env, o Object) (SymbolRef, error) {
	if !o.IsSymbol() {
		return SymbolRef{}, mismatch("symbolp", o)
	}
	return SymbolRef{Object: o, Name: env.symbolName(o)}, nil
}

func (symbolProj) Inject(env *Env, v SymbolRef) (Object, error) {
	if v.Name == "" && v.Object.IsSymbol() {
		return v.Object, nil
	}
	return env.Intern(v.Name)
}

// ---------------------------------------------------------------------------

type stringProj struct{}

func (stringProj) Expected() string { return "stringp" }

func (stringProj) Project(env *Env, o Object) (string, error) {
	if !o.IsString() {
		return "", mismatch("stringp", o)
	}
	return env.stringView(o).String(), nil
}

func (stringProj) Inject(env *Env, v string) (Object, error) {
	return env.MakeString(v)
}

// bytesProj reads a string's bytes: unibyte strings byte for byte,
// multibyte strings as their Go (UTF-8) conversion. Injection produces a
// unibyte string.
type bytesProj struct{}

func (bytesProj) Expected() string { return "stringp" }

func (bytesProj) Project(env *Env, o Object) ([]byte, error) {
	if !o.IsString() {
		return nil, mismatch("stringp", o)
	}
	v := env.stringView(o)
	if !v.Multibyte() {
		out := make([]byte, v.ByteLen())
		copy(out, v.Bytes())
		return out, nil
	}
	return []byte(v.String()), nil
}

func (bytesProj) Inject(env *Env, v []byte) (Object, error) {
	return env.MakeUnibyteString(v)
}

type stringViewProj struct{}

func (stringViewProj) Expected() string { return "stringp" }

func (stringViewProj) Project(env *Env, o Object) (*StringView, error) {
	if !o.IsString() {
		return nil, mismatch("stringp", o)
	}
	return env.stringView(o), nil
}

func (stringViewProj) Inject(_ *Env, v *StringView) (Object, error) {
	return v.obj, nil
}

// ---------------------------------------------------------------------------

// ConsRef is a projected cons cell.
type ConsRef struct {
	obj Object
}

// Object returns the cons cell.
func (c ConsRef) Object() Object { return c.obj }

// Car reads the car.
func (c ConsRef) Car(env *Env) Object { return env.car(c.obj) }

// Cdr reads the cdr.
func (c ConsRef) Cdr(env *Env) Object { return env.cdr(c.obj) }

// SetCar stores into the car.
func (c ConsRef) SetCar(env *Env, v Object) {
	env.setField(c.obj, env.layout.Offsets.ConsCar, v.w)
}

// SetCdr stores into the cdr.
func (c ConsRef) SetCdr(env *Env, v Object) {
	env.setField(c.obj, env.layout.Offsets.ConsCdr, v.w)
}

type consProj struct{}

func (consProj) Expected() string { return "consp" }

func (consProj) Project(env *Env, o Object) (ConsRef, error) {
	if !o.IsCons() {
		return ConsRef{}, mismatch("consp", o)
	}
	return ConsRef{obj: o}, nil
}

func (consProj) Inject(_ *Env, v ConsRef) (Object, error) {
	return v.obj, nil
}

// listProj accepts proper lists only. Circular lists are reported as
// circular-list signals rather than looping.
type listProj struct{}

func (listProj) Expected() string { return "listp" }

func (listProj) Project(env *Env, o Object) ([]Object, error) {
	var out []Object
	slow := o
	for tail := o; !tail.IsNil(); {
		if !tail.IsCons() {
			return nil, mismatch("listp", o)
		}
		out = append(out, env.car(tail))
		tail = env.cdr(tail)

		// Floyd: slow advances every other step.
		if len(out)%2 == 0 {
			slow = env.cdr(slow)
			if Eq(slow, tail) && !tail.IsNil() {
				return nil, &Signal{Symbol: "circular-list", Data: []Datum{o}}
			}
		}
	}
	return out, nil
}

func (listProj) Inject(env *Env, v []Object) (Object, error) {
	return env.List(v...)
}

// ---------------------------------------------------------------------------

// VectorView exposes a plain vector's slots.
type VectorView struct {
	obj Object
	env *Env
	n   int
}

// Object returns the vector.
func (v *VectorView) Object() Object { return v.obj }

// Len returns the slot count.
func (v *VectorView) Len() int { return v.n }

// At returns slot i.
func (v *VectorView) At(i int) (Object, error) {
	if i < 0 || i >= v.n {
		return Nil, &RangeError{Op: "aref", Value: v.obj, Index: int64(i), Min: 0, Max: int64(v.n) - 1}
	}
	return adopt(v.env.field(v.obj, v.env.layout.Offsets.VectorContents+uintptr(i)*8)), nil
}

// Set stores o into slot i.
func (v *VectorView) Set(i int, o Object) error {
	if i < 0 || i >= v.n {
		return &RangeError{Op: "aset", Value: v.obj, Index: int64(i), Min: 0, Max: int64(v.n) - 1}
	}
	v.env.setField(v.obj, v.env.layout.Offsets.VectorContents+uintptr(i)*8, o.w)
	return nil
}

// Items copies all slots.
func (v *VectorView) Items() []Object {
	out := make([]Object, v.n)
	for i := range out {
		out[i], _ = v.At(i)
	}
	return out
}

type vectorProj struct{}

func (vectorProj) Expected() string { return "vectorp" }

func (vectorProj) Project(env *Env, o Object) (*VectorView, error) {
	if !o.IsVectorlike() || env.pvecType(o) != PvecNormalVector {
		return nil, mismatch("vectorp", o)
	}
	return &VectorView{obj: o, env: env, n: int(env.vectorHeader(o))}, nil
}

func (vectorProj) Inject(_ *Env, v *VectorView) (Object, error) {
	return v.obj, nil
}

// ---------------------------------------------------------------------------
// Option
// ---------------------------------------------------------------------------

// Opt is an optional projected value. nil projects to an invalid Opt.
type Opt[T any] struct {
	Value T
	Valid bool
}

// Some wraps v as a present value.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Valid: true}
}

type optionProj[T any] struct {
	inner Projection[T]
}

// Optional accepts nil as "absent" and otherwise projects with p.
func Optional[T any](p Projection[T]) Projection[Opt[T]] {
	return optionProj[T]{inner: p}
}

func (p optionProj[T]) Expected() string { return p.inner.Expected() }

func (p optionProj[T]) Project(env *Env, o Object) (Opt[T], error) {
	if o.IsNil() {
		return Opt[T]{}, nil
	}
	v, err := p.inner.Project(env, o)
	if err != nil {
		return Opt[T]{}, err
	}
	return Some(v), nil
}

func (p optionProj[T]) Inject(env *Env, v Opt[T]) (Object, error) {
	if !v.Valid {
		return Nil, nil
	}
	return p.inner.Inject(env, v.Value)
}
