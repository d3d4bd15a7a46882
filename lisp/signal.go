package lisp

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Datum is one element of signal data before it is allocated in the host:
// an Object, a Sym, a Pair, a []Datum list, a Go string, bool, float64,
// *big.Int or any Go integer.
type Datum any

// Sym is a symbol named by string, interned when the datum is built.
type Sym string

// Pair is a dotted pair datum.
type Pair struct {
	Car Datum
	Cdr Datum
}

// Signal is an error that crosses into the host as (signal SYMBOL DATA).
type Signal struct {
	Symbol string
	Data   []Datum
	Cause  error
}

func (s *Signal) Error() string {
	var b strings.Builder
	b.WriteString(s.Symbol)
	for _, d := range s.Data {
		b.WriteByte(' ')
		b.WriteString(formatDatum(d))
	}
	return b.String()
}

func (s *Signal) Unwrap() error {
	return s.Cause
}

func formatDatum(d Datum) string {
	switch v := d.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case Sym:
		return string(v)
	case Pair:
		return "(" + formatDatum(v.Car) + " . " + formatDatum(v.Cdr) + ")"
	case []Datum:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatDatum(e)
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprint(v)
	}
}

// NewSignal builds a signal with the given condition symbol and data.
func NewSignal(symbol string, data ...Datum) *Signal {
	return &Signal{Symbol: symbol, Data: data}
}

// Errorf signals a plain error with a formatted message.
func Errorf(format string, args ...any) *Signal {
	return &Signal{Symbol: "error", Data: []Datum{fmt.Sprintf(format, args...)}}
}

// UserErrorf signals user-error, which the host reports without a backtrace.
func UserErrorf(format string, args ...any) *Signal {
	return &Signal{Symbol: "user-error", Data: []Datum{fmt.Sprintf(format, args...)}}
}

// ThrowError is a non-local (throw TAG VALUE).
type ThrowError struct {
	Tag   Object
	Value Object
}

func (t *ThrowError) Error() string {
	return fmt.Sprintf("throw %s %s", t.Tag, t.Value)
}

// Throw returns an error that exits to the host's catch for tag.
func Throw(tag, value Object) error {
	return &ThrowError{Tag: tag, Value: value}
}

// AsSignal maps err to the host condition it surfaces as.
func AsSignal(err error) *Signal {
	var (
		sig   *Signal
		arity *WrongNumberOfArgumentsError
		typ   *TypeMismatchError
		rng   *RangeError
	)
	switch {
	case errors.As(err, &sig):
		return sig
	case errors.As(err, &arity):
		var upper Datum = arity.Max
		if arity.Max == Many {
			upper = Sym("many")
		}
		return &Signal{
			Symbol: "wrong-number-of-arguments",
			Data:   []Datum{Pair{arity.Min, upper}, arity.Got},
			Cause:  err,
		}
	case errors.As(err, &typ):
		return &Signal{
			Symbol: "wrong-type-argument",
			Data:   []Datum{Sym(typ.Expected), typ.Value},
			Cause:  err,
		}
	case errors.As(err, &rng):
		if o, ok := rng.Value.(Object); ok {
			return &Signal{Symbol: "args-out-of-range", Data: []Datum{o, rng.Index}, Cause: err}
		}
		return &Signal{Symbol: "overflow-error", Data: []Datum{rng.Value}, Cause: err}
	}
	return &Signal{Symbol: "error", Data: []Datum{err.Error()}, Cause: err}
}

// ---------------------------------------------------------------------------
// Conversion to host exits
// ---------------------------------------------------------------------------

// NonlocalExit converts err into the exit the host should perform. Data is
// allocated in the host with every intermediate rooted; if that allocation
// itself fails the exit degrades to memory-full with no data.
func (e *Env) NonlocalExit(err error) *NonlocalExit {
	var th *ThrowError
	if errors.As(err, &th) {
		return &NonlocalExit{Kind: ExitThrow, Tag: th.Tag.w, Data: th.Value.w}
	}

	sig := AsSignal(err)
	var data Object
	derr := e.Protect(func(s *Scope) error {
		// Objects in the data may only be reachable from here once the
		// primitive's scope has unwound.
		rootData(s, sig.Data)
		var err error
		data, err = e.datum(sig.Data)
		return err
	})
	if derr != nil {
		subrLog.Errorf("building data for %s: %s", sig.Symbol, derr)
		return &NonlocalExit{Kind: ExitSignal, Symbol: "memory-full"}
	}
	return &NonlocalExit{Kind: ExitSignal, Symbol: sig.Symbol, Data: data.w}
}

func rootData(s *Scope, d Datum) {
	switch v := d.(type) {
	case Object:
		s.Root(v)
	case Pair:
		rootData(s, v.Car)
		rootData(s, v.Cdr)
	case []Datum:
		for _, it := range v {
			rootData(s, it)
		}
	}
}

// datum allocates d in the host.
func (e *Env) datum(d Datum) (Object, error) {
	switch v := d.(type) {
	case nil:
		return Nil, nil
	case Object:
		return v, nil
	case Sym:
		return e.Intern(string(v))
	case string:
		return e.MakeString(v)
	case bool:
		return e.Bool(v), nil
	case float64:
		return e.MakeFloat(v)
	case int:
		return e.MakeInteger(big.NewInt(int64(v)))
	case int32:
		return e.MakeInteger(big.NewInt(int64(v)))
	case int64:
		return e.MakeInteger(big.NewInt(v))
	case uint64:
		return e.MakeInteger(new(big.Int).SetUint64(v))
	case *big.Int:
		return e.MakeInteger(v)
	case Pair:
		var out Object
		err := e.Protect(func(s *Scope) error {
			car, err := e.datum(v.Car)
			if err != nil {
				return err
			}
			s.Root(car)
			cdr, err := e.datum(v.Cdr)
			if err != nil {
				return err
			}
			out, err = e.Cons(car, cdr)
			return err
		})
		return out, err
	case []Datum:
		var out Object
		err := e.Protect(func(s *Scope) error {
			items := make([]Object, len(v))
			for i, it := range v {
				o, err := e.datum(it)
				if err != nil {
					return err
				}
				items[i] = s.Root(o)
			}
			var err error
			out, err = e.List(items...)
			return err
		})
		return out, err
	}
	return e.MakeString(fmt.Sprint(d))
}
