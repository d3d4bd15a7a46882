package lisp

import (
	"fmt"
	"unsafe"
)

// Word is a raw host word. The host reads and writes these without any
// checks; Go code should hold Objects instead.
type Word uint64

// Compiled-in word and tag layout. These must agree with the host build;
// CheckLayout compares them against what the host reports at attach time.
const (
	WordBits    = 64
	GCTypeBits  = 3
	IntTypeBits = GCTypeBits - 1

	// MaxFixnumBits is the widest fixnum the tag scheme can hold.
	MaxFixnumBits = WordBits - IntTypeBits

	// MaxChar is the largest character code; characters are fixnums.
	MaxChar        = 0x3FFFFF
	MaxUnicodeChar = 0x10FFFF
	max5ByteChar   = 0x3FFF7F

	tagMask Word = 1<<GCTypeBits - 1
	intMask Word = 1<<IntTypeBits - 1
)

// Tag is the low-bit discriminant of a Word.
type Tag uint8

// LSB tag values.
const (
	TagSymbol     Tag = 0
	tagUnused     Tag = 1
	TagInt0       Tag = 2
	TagCons       Tag = 3
	TagString     Tag = 4
	TagVectorlike Tag = 5
	TagInt1       Tag = 6
	TagFloat      Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagSymbol:
		return "symbol"
	case TagInt0, TagInt1:
		return "fixnum"
	case TagCons:
		return "cons"
	case TagString:
		return "string"
	case TagVectorlike:
		return "vectorlike"
	case TagFloat:
		return "float"
	default:
		return fmt.Sprintf("tag%d", uint8(t))
	}
}

// Pseudovector header encoding.
const (
	PseudovectorFlag     Word = 1 << 62
	PseudovectorAreaBits      = 24
	pvecTypeMask         Word = 0x3F << PseudovectorAreaBits

	PvecNormalVector = 0
	PvecBignum       = 2
)

// StringEncodingEmacs is the multibyte string encoding this package
// understands: UTF-8 extended to 5 bytes, raw bytes as C0/C1 pairs.
const StringEncodingEmacs = 1

// LayoutVersion identifies the compiled-in structure offsets.
const LayoutVersion = 27

// Offsets are byte offsets of fields inside host heap structures.
type Offsets struct {
	ConsCar uintptr
	ConsCdr uintptr

	StringSize      uintptr
	StringSizeByte  uintptr
	StringIntervals uintptr
	StringData      uintptr

	VectorHeader   uintptr
	VectorContents uintptr

	FloatValue uintptr

	SymbolName     uintptr
	SymbolValue    uintptr
	SymbolFunction uintptr
	SymbolPlist    uintptr

	BignumSign  uintptr
	BignumLen   uintptr
	BignumLimbs uintptr
}

// Sizes of host structures in bytes.
const (
	ConsSize   = 16
	FloatSize  = 8
	StringSize = 32
	SymbolSize = 48
)

// Layout is the host ABI description. The host reports one at attach time;
// NativeLayout returns the one this package was compiled against.
type Layout struct {
	Version        uint32
	WordBits       int
	GCTypeBits     int
	Tags           [8]Tag
	Offsets        Offsets
	PvecTypeShift  int
	PvecBignum     int
	StringEncoding int

	// Host parameters. These are not compiled in: the fixnum width decides
	// where integers switch from immediates to heap bignums, and SymbolBase
	// is where the host's static symbol array starts.
	FixnumBits int
	SymbolBase uintptr
}

// Tag table order: symbol, unused, int0, cons, string, vectorlike, int1, float.
var nativeTags = [8]Tag{TagSymbol, tagUnused, TagInt0, TagCons, TagString, TagVectorlike, TagInt1, TagFloat}

var nativeOffsets = Offsets{
	ConsCar: 0,
	ConsCdr: 8,

	StringSize:      0,
	StringSizeByte:  8,
	StringIntervals: 16,
	StringData:      24,

	VectorHeader:   0,
	VectorContents: 8,

	FloatValue: 0,

	SymbolName:     8,
	SymbolValue:    16,
	SymbolFunction: 24,
	SymbolPlist:    32,

	BignumSign:  8,
	BignumLen:   16,
	BignumLimbs: 24,
}

// Static layout assertions. A disagreement here fails the build.
func _() {
	var x [1]struct{}
	_ = x[unsafe.Sizeof(Word(0))-WordBits/8]
	_ = x[WordBits/8-unsafe.Sizeof(Word(0))]
	_ = x[unsafe.Sizeof(uintptr(0))-WordBits/8]
	_ = x[TagInt1-TagInt0-4]
	_ = x[uint(TagInt0)&uint(intMask)-2]
	_ = x[ConsSize-2*WordBits/8]
	_ = x[StringSize-4*WordBits/8]
	_ = x[SymbolSize-6*WordBits/8]
	_ = x[MaxFixnumBits-62]
}

// NativeLayout returns the layout compiled into this package with the
// widest fixnum range.
func NativeLayout() Layout {
	return Layout{
		Version:        LayoutVersion,
		WordBits:       WordBits,
		GCTypeBits:     GCTypeBits,
		Tags:           nativeTags,
		Offsets:        nativeOffsets,
		PvecTypeShift:  PseudovectorAreaBits,
		PvecBignum:     PvecBignum,
		StringEncoding: StringEncodingEmacs,
		FixnumBits:     MaxFixnumBits,
	}
}

// CheckLayout compares a host-reported layout with the compiled-in one.
// It returns an *AbiMismatchError naming the first field that disagrees.
func CheckLayout(host Layout) error {
	native := NativeLayout()
	switch {
	case host.Version != native.Version:
		return &AbiMismatchError{Field: "version", Want: native.Version, Got: host.Version}
	case host.WordBits != native.WordBits:
		return &AbiMismatchError{Field: "word-bits", Want: native.WordBits, Got: host.WordBits}
	case host.GCTypeBits != native.GCTypeBits:
		return &AbiMismatchError{Field: "gc-type-bits", Want: native.GCTypeBits, Got: host.GCTypeBits}
	case host.Tags != native.Tags:
		return &AbiMismatchError{Field: "tags", Want: native.Tags, Got: host.Tags}
	case host.Offsets != native.Offsets:
		return &AbiMismatchError{Field: "offsets", Want: native.Offsets, Got: host.Offsets}
	case host.PvecTypeShift != native.PvecTypeShift:
		return &AbiMismatchError{Field: "pvec-type-shift", Want: native.PvecTypeShift, Got: host.PvecTypeShift}
	case host.PvecBignum != native.PvecBignum:
		return &AbiMismatchError{Field: "pvec-bignum", Want: native.PvecBignum, Got: host.PvecBignum}
	case host.StringEncoding != native.StringEncoding:
		return &AbiMismatchError{Field: "string-encoding", Want: native.StringEncoding, Got: host.StringEncoding}
	case host.FixnumBits < 3 || host.FixnumBits > MaxFixnumBits:
		return &AbiMismatchError{Field: "fixnum-bits", Want: fmt.Sprintf("3..%d", MaxFixnumBits), Got: host.FixnumBits}
	case host.SymbolBase&uintptr(tagMask) != 0:
		return &AbiMismatchError{Field: "symbol-base", Want: "8-byte aligned", Got: host.SymbolBase}
	}
	return nil
}

// MostPositiveFixnum is the largest integer held as an immediate.
func (l *Layout) MostPositiveFixnum() int64 {
	return 1<<(l.FixnumBits-1) - 1
}

// MostNegativeFixnum is the smallest integer held as an immediate.
func (l *Layout) MostNegativeFixnum() int64 {
	return -(1 << (l.FixnumBits - 1))
}

// FixnumInRange reports whether n fits the host's immediate integer range.
func (l *Layout) FixnumInRange(n int64) bool {
	return n >= l.MostNegativeFixnum() && n <= l.MostPositiveFixnum()
}

// addr returns the host address an object word points at. Only valid for
// pointer tags; immediates have no address.
func (l *Layout) addr(o Object) uintptr {
	if Tag(o.w&tagMask) == TagSymbol {
		return l.SymbolBase + uintptr(o.w)
	}
	return uintptr(o.w &^ tagMask)
}
