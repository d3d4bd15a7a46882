// Package hash exports the message digest primitives.
package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	gohash "hash"
	"math/big"

	"github.com/zeebo/xxh3"

	"github.com/krobelus/remacs/lisp"
)

type algorithm struct {
	name string
	new  func() gohash.Hash
}

// In the order secure-hash-algorithms reports them.
var algorithms = []algorithm{
	{"md5", md5.New},
	{"sha1", sha1.New},
	{"sha224", sha256.New224},
	{"sha256", sha256.New},
	{"sha384", sha512.New384},
	{"sha512", sha512.New},
}

func lookup(name string) (algorithm, bool) {
	for _, a := range algorithms {
		if a.name == name {
			return a, true
		}
	}
	return algorithm{}, false
}

// Descriptors returns the primitives of this library.
func Descriptors() []*lisp.Descriptor {
	return []*lisp.Descriptor{
		lisp.Defun("secure-hash").
			Doc(`Return the secure hash of OBJECT, a string.
ALGORITHM is a symbol specifying the hash to use:
- md5    corresponds to MD5, produces a 32-character signature
- sha1   corresponds to SHA-1, produces a 40-character signature
- sha224 corresponds to SHA-2 (SHA-224), produces a 56-character signature
- sha256 corresponds to SHA-2 (SHA-256), produces a 64-character signature
- sha384 corresponds to SHA-2 (SHA-384), produces a 96-character signature
- sha512 corresponds to SHA-2 (SHA-512), produces a 128-character signature

The two optional arguments START and END are positions specifying for
which part of OBJECT to compute the hash.  If nil or omitted, uses the
whole OBJECT.

If BINARY is non-nil, returns a string in binary form.`).
			Arg("algorithm", lisp.ParamOf(lisp.Symbol)).
			Arg("object", lisp.ParamOf(lisp.Strings)).
			Optional("start", lisp.ParamOf(lisp.Fixnum)).
			Optional("end", lisp.ParamOf(lisp.Fixnum)).
			Optional("binary", lisp.ParamOf(lisp.Bool)).
			MustBody(secureHash),

		lisp.Defun0("secure-hash-algorithms", "Return a list of all the supported `secure-hash' algorithms.",
			lisp.List,
			func(env *lisp.Env) ([]lisp.Object, error) {
				var out []lisp.Object
				err := env.Protect(func(s *lisp.Scope) error {
					for _, a := range algorithms {
						sym, err := env.Intern(a.name)
						if err != nil {
							return err
						}
						out = append(out, s.Root(sym))
					}
					return nil
				})
				return out, err
			}),

		lisp.Defun("md5").
			Doc(`Return MD5 message digest of OBJECT, a string.

A message digest is the string representation of the cryptographic checksum
of a document, and for all intents and purposes it is unique.  Furthermore,
it is not possible to derive the original document from its digest.

The two optional arguments START and END are character positions
specifying for which part of OBJECT the message digest should be
computed.  If nil or omitted, the digest is computed for the whole
OBJECT.

The MD5 message digest is computed from the result of encoding the
text in a coding system, not directly from the internal Emacs form of
the text.  The optional fourth argument CODING-SYSTEM specifies which
coding system to encode the text with.  Only utf-8 and the raw
systems are known here; if CODING-SYSTEM is any other symbol, an
error is signaled unless NOERROR is non-nil, in which case raw-text
is used.`).
			Arg("object", lisp.ParamOf(lisp.Strings)).
			Optional("start", lisp.ParamOf(lisp.Fixnum)).
			Optional("end", lisp.ParamOf(lisp.Fixnum)).
			Optional("coding-system", lisp.ParamOf(lisp.Symbol)).
			Optional("noerror", lisp.ParamOf(lisp.Bool)).
			MustBody(md5Digest),

		lisp.Defun("xxh3-hash").
			Doc(`Return the XXH3 hash of the bytes of STRING.
The result is an integer; if WIDE is non-nil, the 128-bit variant is
computed instead and returned as a 32-character hex string.`).
			Arg("string", lisp.ParamOf(lisp.Bytes)).
			Optional("wide", lisp.ParamOf(lisp.Bool)).
			MustBody(xxh3Hash),
	}
}

func secureHash(c *lisp.Call) (lisp.Object, error) {
	alg := lisp.Arg[lisp.SymbolRef](c, 0)
	a, ok := lookup(alg.Name)
	if !ok {
		return lisp.Nil, lisp.Errorf("Invalid algorithm arg: %s", alg.Name)
	}
	data, err := region(c, 1, 2, 3)
	if err != nil {
		return lisp.Nil, err
	}
	h := a.new()
	h.Write(data)
	sum := h.Sum(nil)
	if lisp.Arg[bool](c, 4) {
		return c.Env.MakeUnibyteString(sum)
	}
	return c.Env.MakeString(hex.EncodeToString(sum))
}

var md5CodingSystems = map[string]bool{
	"utf-8":          true,
	"utf-8-unix":     true,
	"utf-8-emacs":    true,
	"raw-text":       true,
	"binary":         true,
	"no-conversion":  true,
	"emacs-internal": true,
}

func md5Digest(c *lisp.Call) (lisp.Object, error) {
	if c.Supplied(3) {
		cs := lisp.Arg[lisp.SymbolRef](c, 3)
		if !md5CodingSystems[cs.Name] && !lisp.Arg[bool](c, 4) {
			return lisp.Nil, lisp.NewSignal("coding-system-error", cs.Object)
		}
	}
	data, err := region(c, 0, 1, 2)
	if err != nil {
		return lisp.Nil, err
	}
	sum := md5.Sum(data)
	return c.Env.MakeString(hex.EncodeToString(sum[:]))
}

// region returns the encoded bytes of the string argument at obj between
// the optional character positions at start and end. Negative positions
// count from the end of the string.
func region(c *lisp.Call, obj, start, end int) ([]byte, error) {
	s := lisp.Arg[*lisp.StringView](c, obj)
	n := int64(s.Len())
	from, to := int64(0), n
	if c.Supplied(start) {
		from = lisp.Arg[int64](c, start)
	}
	if c.Supplied(end) {
		to = lisp.Arg[int64](c, end)
	}
	if from < 0 {
		from += n
	}
	if to < 0 {
		to += n
	}
	if from < 0 || to > n || from > to {
		return nil, lisp.NewSignal("args-out-of-range", s.Object(), c.Raw(start), c.Raw(end))
	}
	sub, err := s.Substring(int(from), int(to))
	if err != nil {
		return nil, err
	}
	if !sub.Multibyte() {
		return sub.Bytes(), nil
	}
	return []byte(sub.String()), nil
}

func xxh3Hash(c *lisp.Call) (lisp.Object, error) {
	data := lisp.Arg[[]byte](c, 0)
	if lisp.Arg[bool](c, 1) {
		sum := xxh3.Hash128(data)
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[:8], sum.Hi)
		binary.BigEndian.PutUint64(buf[8:], sum.Lo)
		return c.Env.MakeString(hex.EncodeToString(buf[:]))
	}
	return c.Env.MakeInteger(new(big.Int).SetUint64(xxh3.Hash(data)))
}
