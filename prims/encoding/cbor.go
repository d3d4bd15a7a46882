package encoding

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/krobelus/remacs/lisp"
)

// symbolTag marks a text string naming a symbol (the registered
// "identifier" tag).
const symbolTag = 39

const maxDepth = 32

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: maxDepth,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func cborDescriptors() []*lisp.Descriptor {
	return []*lisp.Descriptor{
		lisp.Defun("cbor-encode").
			Doc(`Encode OBJECT as canonical CBOR and return a unibyte string.
nil encodes as null and t as true.  Other symbols are tagged text.
Lists and vectors encode as arrays, except that a list whose elements
are all dotted pairs encodes as a map.  Unibyte strings holding
non-ASCII bytes encode as byte strings, other strings as text.`).
			Arg("object", lisp.ParamOf(lisp.Any)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				v, err := toCBOR(c.Env, c.Raw(0), 0)
				if err != nil {
					return lisp.Nil, err
				}
				data, err := encMode.Marshal(v)
				if err != nil {
					return lisp.Nil, lisp.Errorf("CBOR encoding failed: %v", err)
				}
				return c.Env.MakeUnibyteString(data)
			}),

		lisp.Defun("cbor-decode").
			Doc(`Decode the CBOR data item in STRING.
Arrays decode as vectors and maps as alists sorted by key.  null,
undefined and false decode as nil.`).
			Arg("string", lisp.ParamOf(lisp.Bytes)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				var v any
				if err := decMode.Unmarshal(lisp.Arg[[]byte](c, 0), &v); err != nil {
					return lisp.Nil, lisp.Errorf("Invalid CBOR data: %v", err)
				}
				return fromCBOR(c.Env, c.Scope, v)
			}),

		lisp.Defun1("cbor-diagnose", "Return the diagnostic notation of the CBOR data in STRING.",
			lisp.Bytes, lisp.String,
			func(_ *lisp.Env, data []byte) (string, error) {
				s, err := cbor.Diagnose(data)
				if err != nil {
					return "", lisp.Errorf("Invalid CBOR data: %v", err)
				}
				return s, nil
			}),
	}
}

// ---------------------------------------------------------------------------
// Lisp to CBOR
// ---------------------------------------------------------------------------

func toCBOR(env *lisp.Env, o lisp.Object, depth int) (any, error) {
	if depth > maxDepth {
		return nil, lisp.Errorf("Nesting too deep for CBOR")
	}
	if n, ok := o.FixnumValue(); ok {
		return n, nil
	}
	switch {
	case o.IsNil():
		return nil, nil
	case o.IsSymbol():
		if lisp.Eq(o, env.T()) {
			return true, nil
		}
		sym, err := lisp.TryProject(env, lisp.Symbol, o)
		if err != nil {
			return nil, err
		}
		return cbor.Tag{Number: symbolTag, Content: sym.Name}, nil
	case o.IsFloat():
		return lisp.TryProject(env, lisp.Float, o)
	case o.IsString():
		s, err := lisp.TryProject(env, lisp.Strings, o)
		if err != nil {
			return nil, err
		}
		if !s.Multibyte() {
			b := s.Bytes()
			if isASCII(b) {
				return string(b), nil
			}
			return append([]byte(nil), b...), nil
		}
		text := s.String()
		if !utf8.ValidString(text) {
			return []byte(text), nil
		}
		return text, nil
	case o.IsCons():
		items, err := lisp.TryProject(env, lisp.List, o)
		if err != nil {
			return nil, err
		}
		if isAlist(env, items) {
			return alistToMap(env, items, depth)
		}
		return arrayOf(env, items, depth)
	case o.IsVectorlike():
		if v, err := lisp.TryProject(env, lisp.Vector, o); err == nil {
			return arrayOf(env, v.Items(), depth)
		}
		if n, err := lisp.TryProject(env, lisp.Integer, o); err == nil {
			return n, nil
		}
	}
	return nil, lisp.NewSignal("wrong-type-argument", lisp.Sym("cbor-encodable-p"), o)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// isAlist reports whether every element is a dotted pair.
func isAlist(env *lisp.Env, items []lisp.Object) bool {
	for _, it := range items {
		c, err := lisp.TryProject(env, lisp.Cons, it)
		if err != nil {
			return false
		}
		cdr := c.Cdr(env)
		if cdr.IsNil() || cdr.IsCons() {
			return false
		}
	}
	return len(items) > 0
}

func arrayOf(env *lisp.Env, items []lisp.Object, depth int) ([]any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		v, err := toCBOR(env, it, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// alistToMap converts an alist; the first binding of a key wins.
func alistToMap(env *lisp.Env, items []lisp.Object, depth int) (map[any]any, error) {
	out := make(map[any]any, len(items))
	for _, it := range items {
		c, _ := lisp.TryProject(env, lisp.Cons, it)
		k, err := toCBOR(env, c.Car(env), depth+1)
		if err != nil {
			return nil, err
		}
		switch kv := k.(type) {
		case []byte:
			k = cbor.ByteString(kv)
		case *big.Int:
			// Pointer keys would compare by identity.
			return nil, lisp.Errorf("Bignum map key %s is not supported", kv)
		case []any, map[any]any:
			return nil, lisp.NewSignal("wrong-type-argument", lisp.Sym("atom"), c.Car(env))
		}
		if _, dup := out[k]; dup {
			continue
		}
		v, err := toCBOR(env, c.Cdr(env), depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// CBOR to Lisp
// ---------------------------------------------------------------------------

// fromCBOR allocates v. Every intermediate object is rooted in s.
func fromCBOR(env *lisp.Env, s *lisp.Scope, v any) (lisp.Object, error) {
	var (
		o   lisp.Object
		err error
	)
	switch v := v.(type) {
	case nil:
		return lisp.Nil, nil
	case bool:
		return env.Bool(v), nil
	case uint64:
		o, err = env.MakeInteger(new(big.Int).SetUint64(v))
	case int64:
		o, err = env.MakeInteger(big.NewInt(v))
	case big.Int:
		o, err = env.MakeInteger(&v)
	case float64:
		o, err = env.MakeFloat(v)
	case string:
		o, err = env.MakeString(v)
	case []byte:
		o, err = env.MakeUnibyteString(v)
	case cbor.ByteString:
		o, err = env.MakeUnibyteString(v.Bytes())
	case time.Time:
		o, err = env.MakeString(v.Format(time.RFC3339Nano))
	case cbor.SimpleValue:
		o, err = env.Fixnum(int64(v))
	case cbor.Tag:
		if name, ok := v.Content.(string); ok && v.Number == symbolTag {
			return env.Intern(name)
		}
		return fromCBOR(env, s, v.Content)
	case []any:
		items := make([]lisp.Object, len(v))
		for i, it := range v {
			if items[i], err = fromCBOR(env, s, it); err != nil {
				return lisp.Nil, err
			}
		}
		o, err = env.MakeVector(items...)
	case map[any]any:
		o, err = mapToAlist(env, s, v)
	default:
		return lisp.Nil, lisp.Errorf("Unsupported CBOR item %T", v)
	}
	if err != nil {
		return lisp.Nil, err
	}
	return s.Root(o), nil
}

type entry struct {
	enc []byte
	key any
	val any
}

// mapToAlist sorts entries by the canonical encoding of their keys, the
// order cbor-encode writes them in.
func mapToAlist(env *lisp.Env, s *lisp.Scope, m map[any]any) (lisp.Object, error) {
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		enc, err := encMode.Marshal(k)
		if err != nil {
			return lisp.Nil, fmt.Errorf("encoding map key: %w", err)
		}
		entries = append(entries, entry{enc: enc, key: k, val: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].enc, entries[j].enc
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return bytes.Compare(a, b) < 0
	})

	pairs := make([]lisp.Object, len(entries))
	for i, e := range entries {
		k, err := fromCBOR(env, s, e.key)
		if err != nil {
			return lisp.Nil, err
		}
		v, err := fromCBOR(env, s, e.val)
		if err != nil {
			return lisp.Nil, err
		}
		p, err := env.Cons(k, v)
		if err != nil {
			return lisp.Nil, err
		}
		pairs[i] = s.Root(p)
	}
	return env.List(pairs...)
}
