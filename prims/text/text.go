// Package text exports string utilities. Registration code is generated
// from the //remacs:defun directives below.
package text

//go:generate go run github.com/krobelus/remacs/cmd/remacs wrap .

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/krobelus/remacs/lisp"
)

// MaxPadLength bounds the LENGTH accepted by string-pad.
const MaxPadLength = 16 << 20

// Return non-nil if PREFIX is a prefix of STR.
// If IGNORE-CASE is non-nil, the comparison is done without paying
// attention to case differences.
//
//remacs:defun min=2
func StringPrefixP(prefix, str string, ignoreCase bool) bool {
	if !ignoreCase {
		return strings.HasPrefix(str, prefix)
	}
	p, s := []rune(prefix), []rune(str)
	return len(p) <= len(s) && strings.EqualFold(prefix, string(s[:len(p)]))
}

// Return non-nil if SUFFIX is a suffix of STR.
// If IGNORE-CASE is non-nil, the comparison is done without paying
// attention to case differences.
//
//remacs:defun min=2
func StringSuffixP(suffix, str string, ignoreCase bool) bool {
	if !ignoreCase {
		return strings.HasSuffix(str, suffix)
	}
	p, s := []rune(suffix), []rune(str)
	return len(p) <= len(s) && strings.EqualFold(suffix, string(s[len(s)-len(p):]))
}

// Remove PREFIX from STR if present.
//
//remacs:defun
func StringRemovePrefix(prefix, str string) string {
	return strings.TrimPrefix(str, prefix)
}

// Remove SUFFIX from STR if present.
//
//remacs:defun
func StringRemoveSuffix(suffix, str string) string {
	return strings.TrimSuffix(str, suffix)
}

// Join all STRS using SEPARATOR.
// Optional argument SEPARATOR must be a string; nil stands for the empty
// string.
//
//remacs:defun min=1
func StringJoin(env *lisp.Env, strs []lisp.Object, separator string) (string, error) {
	parts := make([]string, len(strs))
	for i, o := range strs {
		s, err := lisp.TryProject(env, lisp.String, o)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, separator), nil
}

// Pad STR to LENGTH using PADDING.
// If PADDING is nil, the space character is used. If START is non-nil,
// the padding is inserted before STR.
// If STR is longer than LENGTH, no padding takes place.
//
//remacs:defun min=2
func StringPad(str string, length int64, padding rune, start bool) (string, error) {
	if length < 0 {
		return "", lisp.Errorf("Invalid length: %d", length)
	}
	if length > MaxPadLength {
		return "", lisp.NewSignal("args-out-of-range", length, 0, MaxPadLength)
	}
	n := utf8.RuneCountInString(str)
	if int64(n) >= length {
		return str, nil
	}
	if padding == 0 {
		padding = ' '
	}
	pad := strings.Repeat(string(padding), int(length)-n)
	if start {
		return pad + str, nil
	}
	return str + pad, nil
}

// Return Levenshtein distance between STRING1 and STRING2.
// The distance is the number of deletions, insertions, and substitutions
// required to transform STRING1 into STRING2.
// If BYTECOMPARE is nil or omitted, compute distance in terms of
// characters; otherwise compare bytes.
//
//remacs:defun min=2
func StringDistance(string1, string2 *lisp.StringView, bytecompare bool) int64 {
	if bytecompare {
		return levenshtein(string1.Bytes(), string2.Bytes())
	}
	return levenshtein(string1.Chars(), string2.Chars())
}

func levenshtein[T comparable](a, b []T) int64 {
	col := make([]int64, len(a)+1)
	for i := range col {
		col[i] = int64(i)
	}
	for x := 1; x <= len(b); x++ {
		last := col[0]
		col[0] = int64(x)
		for y := 1; y <= len(a); y++ {
			old := col[y]
			cost := int64(1)
			if a[y-1] == b[x-1] {
				cost = 0
			}
			col[y] = min(col[y]+1, col[y-1]+1, last+cost)
			last = old
		}
	}
	return col[len(a)]
}

// Search for the string NEEDLE in the string HAYSTACK.
// The return value is the position of the first occurrence of NEEDLE in
// HAYSTACK, or nil if no match was found.
// The optional START-POS argument says where to start searching in
// HAYSTACK and defaults to zero (start at the beginning).
// It must be between zero and the length of HAYSTACK, inclusive.
//
//remacs:defun min=2
func StringSearch(env *lisp.Env, needle, haystack *lisp.StringView, startPos int64) (lisp.Object, error) {
	hay, pat := haystack.Chars(), needle.Chars()
	// Mixed strings compare as multibyte text.
	switch {
	case haystack.Multibyte() && !needle.Multibyte():
		pat = needle.MultibyteChars()
	case !haystack.Multibyte() && needle.Multibyte():
		hay = haystack.MultibyteChars()
	}
	if startPos < 0 || startPos > int64(len(hay)) {
		return lisp.Nil, &lisp.RangeError{Op: "string-search", Value: haystack.Object(), Index: startPos, Max: int64(len(hay))}
	}

	for i := int(startPos); i+len(pat) <= len(hay); i++ {
		if slices.Equal(hay[i:i+len(pat)], pat) {
			return env.Fixnum(int64(i))
		}
	}
	return lisp.Nil, nil
}

// Concatenate all the argument characters and make the result a string.
//
//remacs:defun name=string
func String(env *lisp.Env, characters ...rune) (lisp.Object, error) {
	return env.MakeStringChars(characters...)
}
