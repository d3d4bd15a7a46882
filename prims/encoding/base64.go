package encoding

import (
	"encoding/base64"
	"strings"

	"github.com/krobelus/remacs/lisp"
)

// mimeLineLength is where base64-encode-string breaks lines.
const mimeLineLength = 76

func base64Descriptors() []*lisp.Descriptor {
	return []*lisp.Descriptor{
		lisp.Defun("base64-encode-string").
			Doc(`Base64-encode STRING and return the result.
Optional second argument NO-LINE-BREAK means do not break long lines
into shorter lines.`).
			Arg("string", lisp.ParamOf(lisp.Strings)).
			Optional("no-line-break", lisp.ParamOf(lisp.Bool)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				data, err := octets(lisp.Arg[*lisp.StringView](c, 0))
				if err != nil {
					return lisp.Nil, err
				}
				enc := base64.StdEncoding.EncodeToString(data)
				if !lisp.Arg[bool](c, 1) {
					enc = breakLines(enc)
				}
				return c.Env.MakeString(enc)
			}),

		lisp.Defun("base64url-encode-string").
			Doc(`Base64url-encode STRING and return the result.
Optional second argument NO-PAD means do not add padding char =.

This produces the URL variant of base 64 encoding defined in RFC 4648.`).
			Arg("string", lisp.ParamOf(lisp.Strings)).
			Optional("no-pad", lisp.ParamOf(lisp.Bool)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				data, err := octets(lisp.Arg[*lisp.StringView](c, 0))
				if err != nil {
					return lisp.Nil, err
				}
				enc := base64.URLEncoding
				if lisp.Arg[bool](c, 1) {
					enc = base64.RawURLEncoding
				}
				return c.Env.MakeString(enc.EncodeToString(data))
			}),

		lisp.Defun("base64-decode-string").
			Doc(`Base64-decode STRING and return the result as a string.
Optional argument BASE64URL determines whether to use the URL variant of
the base 64 encoding, as defined in RFC 4648.
If optional third argument IGNORE-INVALID is non-nil invalid characters
are ignored instead of signaling an error.`).
			Arg("string", lisp.ParamOf(lisp.Strings)).
			Optional("base64url", lisp.ParamOf(lisp.Bool)).
			Optional("ignore-invalid", lisp.ParamOf(lisp.Bool)).
			MustBody(func(c *lisp.Call) (lisp.Object, error) {
				s := lisp.Arg[*lisp.StringView](c, 0)
				out, ok := decodeBase64(s.Chars(), lisp.Arg[bool](c, 1), lisp.Arg[bool](c, 2))
				if !ok {
					return lisp.Nil, lisp.Errorf("Invalid base64 data")
				}
				return c.Env.MakeUnibyteString(out)
			}),
	}
}

// octets returns the bytes a string stands for. Only unibyte text, Latin-1
// characters and raw bytes are representable.
func octets(s *lisp.StringView) ([]byte, error) {
	if !s.Multibyte() {
		return s.Bytes(), nil
	}
	out := make([]byte, 0, s.Len())
	for _, c := range s.Chars() {
		switch {
		case c < 0x100:
			out = append(out, byte(c))
		case c >= rawByteFirst && c <= lisp.MaxChar:
			out = append(out, byte(c-rawByteFirst+0x80))
		default:
			return nil, lisp.Errorf("Multibyte character in data for base64 encoding")
		}
	}
	return out, nil
}

const rawByteFirst = 0x3FFF80

func breakLines(s string) string {
	if len(s) <= mimeLineLength {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/mimeLineLength)
	for len(s) > mimeLineLength {
		b.WriteString(s[:mimeLineLength])
		b.WriteByte('\n')
		s = s[mimeLineLength:]
	}
	b.WriteString(s)
	return b.String()
}

func isIgnorable(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r'
}

// decodeBase64 decodes chars, skipping whitespace. Padding is optional in
// the URL variant; in both variants nothing but padding may follow it.
func decodeBase64(chars []rune, url, ignoreInvalid bool) ([]byte, bool) {
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	enc := base64.RawStdEncoding
	if url {
		alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
		enc = base64.RawURLEncoding
	}

	clean := make([]byte, 0, len(chars))
	padding := 0
	for _, c := range chars {
		switch {
		case isIgnorable(c):
		case c == '=':
			padding++
		case c < 0x80 && strings.IndexByte(alphabet, byte(c)) >= 0:
			if padding > 0 {
				return nil, false
			}
			clean = append(clean, byte(c))
		case ignoreInvalid:
		default:
			return nil, false
		}
	}
	if len(clean)%4 == 1 {
		return nil, false
	}
	if padding > 0 && (len(clean)+padding)%4 != 0 {
		return nil, false
	}
	if !url && padding == 0 && len(clean)%4 != 0 {
		return nil, false
	}
	out, err := enc.DecodeString(string(clean))
	if err != nil {
		return nil, false
	}
	return out, true
}
