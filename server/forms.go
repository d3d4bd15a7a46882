package server

import (
	"strings"
	"unicode"
)

// form is a list in a buffer whose head is a symbol in call position.
type form struct {
	Head string
	Args int
	// Line and Col locate the head symbol, in runes from zero.
	Line, Col int
}

type listKind uint8

const (
	listCode    listKind = iota
	listData             // quoted lists, vectors, argument lists
	listBinds            // the binding list of let and friends
	listBinding          // one (VAR INIT...) binding
)

type frame struct {
	kind  listKind
	close rune
	items int
	head  string
	line  int
	col   int
}

// specialLists names forms whose Nth element is not code, and what it is.
var specialLists = map[string]struct {
	index int
	kind  listKind
}{
	"lambda":         {1, listData},
	"defun":          {2, listData},
	"defmacro":       {2, listData},
	"defsubst":       {2, listData},
	"cl-defun":       {2, listData},
	"let":            {1, listBinds},
	"let*":           {1, listBinds},
	"dolist":         {1, listBinding},
	"dotimes":        {1, listBinding},
	"quote":          {1, listData},
	"function":       {1, listData},
	"condition-case": {-3, listBinding},
}

// scanForms reads elisp text and returns every list in code position
// whose head is a symbol, with its argument count. Unbalanced input
// yields the forms closed so far.
func scanForms(text string) []form {
	var (
		forms  []form
		stack  []*frame
		quoted bool
		line   int
		col    int
	)
	rs := []rune(text)

	// advance moves past rs[i], tracking the position.
	advance := func(i int) int {
		if rs[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
		return i + 1
	}
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	// item records one element of the innermost list.
	item := func() {
		if f := top(); f != nil {
			f.items++
		}
		quoted = false
	}

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i = advance(i)

		case r == ';':
			for i < len(rs) && rs[i] != '\n' {
				i = advance(i)
			}

		case r == '\'' || r == '`':
			quoted = true
			i = advance(i)

		case r == '#' && i+1 < len(rs) && rs[i+1] == '\'':
			quoted = true
			i = advance(advance(i))

		case r == ',':
			i = advance(i)
			if i < len(rs) && rs[i] == '@' {
				i = advance(i)
			}

		case r == '"':
			i = advance(i)
			for i < len(rs) && rs[i] != '"' {
				if rs[i] == '\\' && i+1 < len(rs) {
					i = advance(i)
				}
				i = advance(i)
			}
			if i < len(rs) {
				i = advance(i)
			}
			item()

		case r == '?':
			i = advance(i)
			if i < len(rs) && rs[i] == '\\' {
				i = advance(i)
			}
			if i < len(rs) {
				i = advance(i)
			}
			item()

		case r == '(' || r == '[':
			parent := top()
			kind := childKind(parent, quoted, r)
			item()
			stack = append(stack, &frame{kind: kind, close: closer(r)})
			i = advance(i)

		case r == ')' || r == ']':
			if f := top(); f != nil && f.close == r {
				stack = stack[:len(stack)-1]
				if f.kind == listCode && f.head != "" {
					forms = append(forms, form{Head: f.head, Args: f.items - 1, Line: f.line, Col: f.col})
				}
			}
			i = advance(i)

		default:
			start, startLine, startCol := i, line, col
			for i < len(rs) && isSymbolRune(rs[i]) {
				if rs[i] == '\\' && i+1 < len(rs) {
					i = advance(i)
				}
				i = advance(i)
			}
			if i == start {
				// A rune that is neither a delimiter nor a symbol constituent.
				i = advance(i)
				continue
			}
			if f := top(); f != nil && f.items == 0 && !quoted {
				atom := string(rs[start:i])
				if !isNumber(atom) {
					f.head = atom
					f.line, f.col = startLine, startCol
				}
			}
			item()
		}
	}
	return forms
}

// childKind decides how a list opened by open inside parent is read.
func childKind(parent *frame, quoted bool, open rune) listKind {
	if open == '[' || quoted {
		return listData
	}
	if parent == nil {
		return listCode
	}
	switch parent.kind {
	case listData:
		return listData
	case listBinds:
		return listBinding
	}
	// parent.items is the index this list will take.
	if s, ok := specialLists[parent.head]; ok && parent.kind == listCode {
		switch {
		case s.index >= 0 && parent.items == s.index:
			return s.kind
		case s.index < 0 && parent.items >= -s.index:
			return s.kind
		}
	}
	return listCode
}

func closer(open rune) rune {
	if open == '[' {
		return ']'
	}
	return ')'
}

// isSymbolRune reports whether r can be part of an elisp symbol.
func isSymbolRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(`-+*/_~!@$%^&=:<>{}.\`, r)
}

func isNumber(s string) bool {
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return false
	}
	dot := false
	for _, r := range s {
		switch {
		case r == '.' && !dot:
			dot = true
		case r < '0' || r > '9':
			return false
		}
	}
	return s != "."
}
