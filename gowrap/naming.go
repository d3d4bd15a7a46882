package gowrap

import (
	"strings"
	"unicode"
)

// GoNameToLispName converts a Go identifier to a Lisp symbol name.
// e.g., "StringPrefixP" → "string-prefix-p", "ignoreCase" → "ignore-case",
// "MD5Sum" → "md5-sum"
func GoNameToLispName(name string) string {
	rs := []rune(name)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			// Start a new word at a lower→upper boundary, or at the last
			// capital of an acronym ("MD5Sum" splits before "Sum").
			if i > 0 && (!unicode.IsUpper(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				if rs[i-1] != '_' {
					b.WriteByte('-')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '_' {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// exportsFileName is where the generated registration code goes.
const exportsFileName = "zz_exports.go"
