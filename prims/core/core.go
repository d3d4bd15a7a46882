// Package core exports the basic object primitives: strings, conses and
// type predicates.
package core

import (
	"github.com/krobelus/remacs/lisp"
)

// Descriptors returns the primitives of this library.
func Descriptors() []*lisp.Descriptor {
	return []*lisp.Descriptor{
		lisp.Defun1("string-length", "Return the number of characters in STRING.",
			lisp.Strings, lisp.Fixnum,
			func(_ *lisp.Env, s *lisp.StringView) (int64, error) {
				return int64(s.Len()), nil
			}),

		lisp.Defun1("string-bytes", "Return the number of bytes in STRING.\nIf STRING is multibyte, this may be greater than the length of STRING.",
			lisp.Strings, lisp.Fixnum,
			func(_ *lisp.Env, s *lisp.StringView) (int64, error) {
				return int64(s.ByteLen()), nil
			}),

		lisp.Defun1("multibyte-string-p", "Return t if OBJECT is a multibyte string.\nReturn nil if OBJECT is either a unibyte string, or not a string.",
			lisp.Any, lisp.Bool,
			func(env *lisp.Env, o lisp.Object) (bool, error) {
				if !o.IsString() {
					return false, nil
				}
				s, err := lisp.TryProject(env, lisp.Strings, o)
				if err != nil {
					return false, err
				}
				return s.Multibyte(), nil
			}),

		lisp.Defun1("car-safe", "Return the car of OBJECT if it is a cons cell, or else nil.",
			lisp.Any, lisp.Any,
			func(env *lisp.Env, o lisp.Object) (lisp.Object, error) {
				if !o.IsCons() {
					return lisp.Nil, nil
				}
				c, err := lisp.TryProject(env, lisp.Cons, o)
				if err != nil {
					return lisp.Nil, err
				}
				return c.Car(env), nil
			}),

		lisp.Defun("cons").
			Doc("Create a new cons, give it CAR and CDR as components, and return it.").
			Arg("car", lisp.ParamOf(lisp.Any)).
			Arg("cdr", lisp.ParamOf(lisp.Any)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				return c.Env.Cons(c.Raw(0), c.Raw(1))
			}),

		lisp.Defun("length").
			Doc("Return the length of vector, list or string SEQUENCE.\nA byte-code function object is also allowed.").
			Arg("sequence", lisp.ParamOf(lisp.Any)).
			MustBody(length),

		lisp.Defun1("natnump", "Return t if OBJECT is a nonnegative integer.",
			lisp.Any, lisp.Bool,
			func(env *lisp.Env, o lisp.Object) (bool, error) {
				if n, ok := o.FixnumValue(); ok {
					return n >= 0, nil
				}
				if !o.IsVectorlike() {
					return false, nil
				}
				v, err := lisp.TryProject(env, lisp.Integer, o)
				if err != nil {
					return false, nil
				}
				return v.Sign() >= 0, nil
			}),

		lisp.Defun1("char-to-string", "Convert argument CHAR to a string containing that character.",
			lisp.Char, lisp.Any,
			func(env *lisp.Env, c rune) (lisp.Object, error) {
				return env.MakeStringChars(c)
			}),

		lisp.Defun1("identity", "Return the ARGUMENT unchanged.",
			lisp.Any, lisp.Any,
			func(_ *lisp.Env, o lisp.Object) (lisp.Object, error) {
				return o, nil
			}),

		lisp.Defun2("eq", "Return t if the two args are the same Lisp object.",
			lisp.Any, lisp.Any, lisp.Bool,
			func(_ *lisp.Env, a, b lisp.Object) (bool, error) {
				return lisp.Eq(a, b), nil
			}),
	}
}

func length(c *lisp.Call) (lisp.Object, error) {
	env, o := c.Env, c.Raw(0)
	var n int
	switch {
	case o.IsNil():
	case o.IsString():
		s, err := lisp.TryProject(env, lisp.Strings, o)
		if err != nil {
			return lisp.Nil, err
		}
		n = s.Len()
	case o.IsCons():
		items, err := lisp.TryProject(env, lisp.List, o)
		if err != nil {
			return lisp.Nil, err
		}
		n = len(items)
	case o.IsVectorlike():
		v, err := lisp.TryProject(env, lisp.Vector, o)
		if err != nil {
			return lisp.Nil, lisp.NewSignal("wrong-type-argument", lisp.Sym("sequencep"), o)
		}
		n = v.Len()
	default:
		return lisp.Nil, lisp.NewSignal("wrong-type-argument", lisp.Sym("sequencep"), o)
	}
	return env.Fixnum(int64(n))
}
