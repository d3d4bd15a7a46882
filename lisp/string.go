package lisp

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Host multibyte encoding (StringEncodingEmacs)
//
// Characters up to 0x1FFFFF use UTF-8 byte patterns (without the Unicode
// range restriction), characters up to 0x3FFF7F use a 5-byte F8 form, and
// the raw-byte characters 0x3FFF80..0x3FFFFF are two bytes led by C0 or C1.
// ---------------------------------------------------------------------------

const rawByteBase = 0x3FFF00

// charBytes returns the encoded length of a multibyte sequence starting
// with lead byte b.
func charBytes(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	case b == 0xF8:
		return 5
	}
	return 1
}

// decodeChar decodes one character from p.
func decodeChar(p []byte) (rune, int) {
	b := p[0]
	switch n := charBytes(b); n {
	case 1:
		return rune(b), 1
	case 2:
		c := rune(b&0x1F)<<6 | rune(p[1]&0x3F)
		if b < 0xC2 {
			c += 0x3FFF80
		}
		return c, 2
	case 3:
		return rune(b&0x0F)<<12 | rune(p[1]&0x3F)<<6 | rune(p[2]&0x3F), 3
	case 4:
		return rune(b&0x07)<<18 | rune(p[1]&0x3F)<<12 | rune(p[2]&0x3F)<<6 | rune(p[3]&0x3F), 4
	default:
		return rune(p[1]&0x0F)<<18 | rune(p[2]&0x3F)<<12 | rune(p[3]&0x3F)<<6 | rune(p[4]&0x3F), 5
	}
}

// appendChar appends the multibyte encoding of c.
func appendChar(dst []byte, c rune) []byte {
	switch {
	case c < 0x80:
		return append(dst, byte(c))
	case c < 0x800:
		return append(dst, 0xC0|byte(c>>6), 0x80|byte(c&0x3F))
	case c < 0x10000:
		return append(dst, 0xE0|byte(c>>12), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
	case c < 0x200000:
		return append(dst, 0xF0|byte(c>>18), 0x80|byte((c>>12)&0x3F), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
	case c <= max5ByteChar:
		return append(dst, 0xF8, 0x80|byte((c>>18)&0x0F), 0x80|byte((c>>12)&0x3F), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
	default:
		b := c - rawByteBase
		return append(dst, 0xC0|byte((b>>6)&1), 0x80|byte(b&0x3F))
	}
}

// isRawByteChar reports whether c stands for a raw 8-bit byte.
func isRawByteChar(c rune) bool {
	return c > max5ByteChar && c <= MaxChar
}

// encodeGoString converts a Go string into host string data. ASCII-only
// strings become unibyte; anything else is multibyte, with bytes that are
// not valid UTF-8 kept as raw-byte characters.
func encodeGoString(s string) (data []byte, nchars int, multibyte bool) {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s), len(s), false
	}

	data = make([]byte, 0, len(s)+len(s)/4)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			data = appendChar(data, rawByteBase+rune(s[i]))
			i++
		} else {
			data = appendChar(data, r)
			i += size
		}
		nchars++
	}
	return data, nchars, true
}

// ---------------------------------------------------------------------------
// StringView
// ---------------------------------------------------------------------------

// StringView exposes a host string with host indexing: character positions
// for multibyte strings, byte positions for unibyte ones.
type StringView struct {
	obj       Object
	data      []byte
	nchars    int
	multibyte bool

	// Last char/byte position pair, so sequential CharAt is linear overall.
	cacheChar int
	cacheByte int
}

func (e *Env) stringView(o Object) *StringView {
	off := e.layout.Offsets
	size := int64(e.field(o, off.StringSize))
	sizeByte := int64(e.field(o, off.StringSizeByte))
	dataAddr := uintptr(e.field(o, off.StringData))

	v := &StringView{obj: o, nchars: int(size)}
	nbytes := int(size)
	if sizeByte >= 0 {
		v.multibyte = true
		nbytes = int(sizeByte)
	}
	v.data = e.host.LoadBytes(dataAddr, nbytes)
	return v
}

// Object returns the string the view was taken from.
func (v *StringView) Object() Object {
	return v.obj
}

// Len returns the length in characters.
func (v *StringView) Len() int {
	return v.nchars
}

// ByteLen returns the length of the internal representation in bytes.
func (v *StringView) ByteLen() int {
	return len(v.data)
}

// Multibyte reports whether the string uses the multibyte representation.
func (v *StringView) Multibyte() bool {
	return v.multibyte
}

// Bytes returns the internal representation.
func (v *StringView) Bytes() []byte {
	return v.data
}

// CharAt returns the character at character index i.
func (v *StringView) CharAt(i int) (rune, error) {
	if i < 0 || i >= v.nchars {
		return 0, &RangeError{Op: "aref", Value: v.obj, Index: int64(i), Min: 0, Max: int64(v.nchars) - 1}
	}
	if !v.multibyte {
		return rune(v.data[i]), nil
	}
	ci, bi := 0, 0
	if i >= v.cacheChar {
		ci, bi = v.cacheChar, v.cacheByte
	}
	for ci < i {
		bi += charBytes(v.data[bi])
		ci++
	}
	v.cacheChar, v.cacheByte = ci, bi
	c, _ := decodeChar(v.data[bi:])
	return c, nil
}

// Chars decodes all characters. The elements of a unibyte string are its
// bytes, as aref returns them.
func (v *StringView) Chars() []rune {
	out := make([]rune, 0, v.nchars)
	if !v.multibyte {
		for _, b := range v.data {
			out = append(out, rune(b))
		}
		return out
	}
	for i := 0; i < len(v.data); {
		c, n := decodeChar(v.data[i:])
		out = append(out, c)
		i += n
	}
	return out
}

// MultibyteChars decodes the characters v would have after conversion to a
// multibyte string: unibyte bytes above 0x7F become raw-byte characters.
func (v *StringView) MultibyteChars() []rune {
	out := v.Chars()
	if !v.multibyte {
		for i, c := range out {
			if c >= 0x80 {
				out[i] = rawByteBase + c
			}
		}
	}
	return out
}

// String converts to a Go string. Raw-byte characters become the bytes
// they stand for; characters beyond Unicode become U+FFFD.
func (v *StringView) String() string {
	if !v.multibyte {
		return string(v.data)
	}
	var b strings.Builder
	b.Grow(len(v.data))
	for i := 0; i < len(v.data); {
		c, n := decodeChar(v.data[i:])
		switch {
		case isRawByteChar(c):
			b.WriteByte(byte(c - rawByteBase))
		case c > MaxUnicodeChar:
			b.WriteRune(utf8.RuneError)
		default:
			b.WriteRune(c)
		}
		i += n
	}
	return b.String()
}

// Substring returns a detached view of characters [from, to).
func (v *StringView) Substring(from, to int) (*StringView, error) {
	if from < 0 || to > v.nchars || from > to {
		return nil, &RangeError{Op: "substring", Value: v.obj, Index: int64(from), Min: 0, Max: int64(v.nchars)}
	}
	if !v.multibyte {
		return &StringView{data: v.data[from:to], nchars: to - from}, nil
	}
	bi := 0
	for ci := 0; ci < from; ci++ {
		bi += charBytes(v.data[bi])
	}
	start := bi
	for ci := from; ci < to; ci++ {
		bi += charBytes(v.data[bi])
	}
	return &StringView{data: v.data[start:bi], nchars: to - from, multibyte: true}, nil
}

// MakeStringChars allocates a host string holding chars. The result is
// unibyte when every character is ASCII.
func (e *Env) MakeStringChars(chars ...rune) (Object, error) {
	multibyte := false
	for _, c := range chars {
		if c < 0 || c > MaxChar {
			return Nil, &RangeError{Op: "char", Value: int64(c), Min: 0, Max: MaxChar}
		}
		if c >= 0x80 {
			multibyte = true
		}
	}
	var data []byte
	for _, c := range chars {
		if multibyte {
			data = appendChar(data, c)
		} else {
			data = append(data, byte(c))
		}
	}
	w, err := e.host.AllocString(data, len(chars), multibyte)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}
