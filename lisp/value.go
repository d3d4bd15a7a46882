package lisp

import "fmt"

// Object is a host value as seen from Go.
//
// The word inside is private: pointer-tagged Objects are only created from
// words the host handed over, so Go code cannot fabricate a heap reference.
// Immediates (fixnums, characters) are built with Layout.Encode.
//
// The zero Object is nil, which the host places at symbol offset 0.
type Object struct {
	w Word
}

// Nil is the host's nil symbol.
var Nil Object

// adopt wraps a word received from the host. It must only be called on
// words that came out of a host call.
func adopt(w Word) Object {
	return Object{w: w}
}

// Word returns the raw word for handing back to the host.
func (o Object) Word() Word {
	return o.w
}

// Tag returns the low-bit discriminant.
func (o Object) Tag() Tag {
	return Tag(o.w & tagMask)
}

// IsNil returns true if o is the nil symbol.
func (o Object) IsNil() bool {
	return o.w == 0
}

// IsFixnum returns true if o is an immediate integer.
func (o Object) IsFixnum() bool {
	return o.w&intMask == Word(TagInt0)
}

// IsSymbol returns true if o is a symbol (including nil).
func (o Object) IsSymbol() bool {
	return o.Tag() == TagSymbol
}

// IsCons returns true if o points at a cons cell.
func (o Object) IsCons() bool {
	return o.Tag() == TagCons
}

// IsString returns true if o points at a string.
func (o Object) IsString() bool {
	return o.Tag() == TagString
}

// IsVectorlike returns true if o points at a vector or pseudovector.
func (o Object) IsVectorlike() bool {
	return o.Tag() == TagVectorlike
}

// IsFloat returns true if o points at a boxed float.
func (o Object) IsFloat() bool {
	return o.Tag() == TagFloat
}

// IsImmediate returns true if o carries its payload in the word itself.
func (o Object) IsImmediate() bool {
	return o.IsFixnum()
}

// FixnumValue returns the payload of a fixnum. No heap access.
func (o Object) FixnumValue() (int64, bool) {
	if !o.IsFixnum() {
		return 0, false
	}
	return int64(o.w) >> IntTypeBits, true
}

// Eq is host identity: raw word equality. Two distinct heap objects with
// equal contents are not Eq.
func Eq(a, b Object) bool {
	return a.w == b.w
}

func (o Object) String() string {
	if n, ok := o.FixnumValue(); ok {
		return fmt.Sprintf("%d", n)
	}
	if o.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("#<%s 0x%x>", o.Tag(), uint64(o.w))
}

// ---------------------------------------------------------------------------
// Decode / Encode
// ---------------------------------------------------------------------------

// Kind is the decoded discriminant of an Object.
type Kind uint8

const (
	KindFixnum Kind = iota
	KindSymbol
	KindCons
	KindString
	KindVectorlike
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindFixnum:
		return "fixnum"
	case KindSymbol:
		return "symbol"
	case KindCons:
		return "cons"
	case KindString:
		return "string"
	case KindVectorlike:
		return "vectorlike"
	case KindFloat:
		return "float"
	}
	return "unknown"
}

// View is a decoded Object. Immediates carry their payload; pointer kinds
// carry the host address they refer to.
type View struct {
	Tag    Tag
	Kind   Kind
	Fixnum int64
	Addr   uintptr
}

// Decode splits o into discriminant and payload in constant time. It never
// touches host memory.
func (l *Layout) Decode(o Object) (View, error) {
	t := o.Tag()
	switch t {
	case TagInt0, TagInt1:
		n := int64(o.w) >> IntTypeBits
		if !l.FixnumInRange(n) {
			return View{}, &MalformedValueError{Word: o.w, Reason: "fixnum payload exceeds host fixnum width"}
		}
		return View{Tag: t, Kind: KindFixnum, Fixnum: n}, nil
	case TagSymbol:
		return View{Tag: t, Kind: KindSymbol, Addr: l.addr(o)}, nil
	case TagCons, TagString, TagVectorlike, TagFloat:
		a := l.addr(o)
		if a == 0 {
			return View{}, &MalformedValueError{Word: o.w, Reason: "null heap address"}
		}
		return View{Tag: t, Kind: pointerKinds[t], Addr: a}, nil
	}
	return View{}, &MalformedValueError{Word: o.w, Reason: "unused tag"}
}

var pointerKinds = map[Tag]Kind{
	TagCons:       KindCons,
	TagString:     KindString,
	TagVectorlike: KindVectorlike,
	TagFloat:      KindFloat,
}

// Immediate names the discriminants Go code may encode itself. Pointer tags
// have no Immediate, so a heap reference cannot be synthesized.
type Immediate uint8

const (
	ImmFixnum Immediate = iota + 1
	ImmChar
)

// Encode builds an immediate Object. Payloads outside the discriminant's
// bit budget are rejected with a MalformedValueError.
func (l *Layout) Encode(imm Immediate, payload int64) (Object, error) {
	switch imm {
	case ImmFixnum:
		if !l.FixnumInRange(payload) {
			return Nil, &MalformedValueError{Word: Word(payload), Reason: fmt.Sprintf("%d does not fit a %d-bit fixnum", payload, l.FixnumBits)}
		}
	case ImmChar:
		if payload < 0 || payload > MaxChar {
			return Nil, &MalformedValueError{Word: Word(payload), Reason: fmt.Sprintf("%d is not a character code", payload)}
		}
	default:
		return Nil, &MalformedValueError{Word: Word(payload), Reason: fmt.Sprintf("unknown immediate %d", imm)}
	}
	return Object{w: Word(uint64(payload)<<IntTypeBits) | Word(TagInt0)}, nil
}

// MakeFixnum encodes n as a fixnum, returning a RangeError when n does not
// fit the host's immediate range.
func (l *Layout) MakeFixnum(n int64) (Object, error) {
	if !l.FixnumInRange(n) {
		return Nil, &RangeError{Op: "fixnum", Value: n, Min: l.MostNegativeFixnum(), Max: l.MostPositiveFixnum()}
	}
	return l.Encode(ImmFixnum, n)
}
