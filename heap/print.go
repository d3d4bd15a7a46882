package heap

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/krobelus/remacs/lisp"
)

// Format prints w the way the host's prin1 would, as far as this heap
// knows the object kinds. Lists are cut off after a fixed length.
func (h *Heap) Format(w lisp.Word) string {
	var b strings.Builder
	h.format(&b, w, 0)
	return b.String()
}

const maxPrintLength = 1000

func (h *Heap) format(b *strings.Builder, w lisp.Word, depth int) {
	if depth > 100 {
		b.WriteString("...")
		return
	}
	off := h.layout.Offsets
	switch lisp.Tag(w & 7) {
	case lisp.TagInt0, lisp.TagInt1:
		b.WriteString(strconv.FormatInt(int64(w)>>2, 10))
	case lisp.TagSymbol:
		b.WriteString(h.symbolName(w))
	case lisp.TagFloat:
		f := math.Float64frombits(uint64(h.get(h.address(w) + off.FloatValue)))
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnI") {
			s += ".0"
		}
		b.WriteString(s)
	case lisp.TagString:
		b.WriteString(quote(h.stringBytes(w)))
	case lisp.TagCons:
		b.WriteByte('(')
		for i := 0; ; i++ {
			if i == maxPrintLength {
				b.WriteString(" ...")
				break
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			addr := h.address(w)
			h.format(b, h.get(addr+off.ConsCar), depth+1)
			w = h.get(addr + off.ConsCdr)
			if w == 0 {
				break
			}
			if lisp.Tag(w&7) != lisp.TagCons {
				b.WriteString(" . ")
				h.format(b, w, depth+1)
				break
			}
		}
		b.WriteByte(')')
	case lisp.TagVectorlike:
		h.formatVectorlike(b, w, depth)
	default:
		fmt.Fprintf(b, "#<garbage 0x%x>", uint64(w))
	}
}

func (h *Heap) formatVectorlike(b *strings.Builder, w lisp.Word, depth int) {
	off := h.layout.Offsets
	addr := h.address(w)
	hdr := h.get(addr + off.VectorHeader)
	switch {
	case hdr&lisp.PseudovectorFlag == 0:
		b.WriteByte('[')
		for i := 0; i < int(hdr); i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			h.format(b, h.get(addr+off.VectorContents+uintptr(i*8)), depth+1)
		}
		b.WriteByte(']')
	case hdr == h.pvecHeader(h.layout.PvecBignum):
		b.WriteString(h.bignum(addr).String())
	case hdr == h.pvecHeader(PvecSubr):
		idx := int(int64(h.get(addr+off.VectorContents)) >> 2)
		fmt.Fprintf(b, "#<subr %s>", h.subrs[idx].Name)
	default:
		fmt.Fprintf(b, "#<vectorlike 0x%x>", uint64(w))
	}
}

func (h *Heap) bignum(addr uintptr) *big.Int {
	off := h.layout.Offsets
	n := int(h.get(addr + off.BignumLen))
	v := new(big.Int)
	for i := n - 1; i >= 0; i-- {
		v.Lsh(v, 64)
		v.Or(v, new(big.Int).SetUint64(uint64(h.get(addr+off.BignumLimbs+uintptr(i*8)))))
	}
	if h.get(addr+off.BignumSign) != 0 {
		v.Neg(v)
	}
	return v
}

func (h *Heap) symbolName(sym lisp.Word) string {
	name := h.symbolField(sym, h.layout.Offsets.SymbolName)
	if name == 0 {
		return "nil"
	}
	return string(h.stringBytes(name))
}

// stringBytes returns the internal representation of a string.
func (h *Heap) stringBytes(w lisp.Word) []byte {
	off := h.layout.Offsets
	addr := h.address(w)
	n := int64(h.get(addr + off.StringSizeByte))
	if n < 0 {
		n = int64(h.get(addr + off.StringSize))
	}
	data := uintptr(h.get(addr + off.StringData))
	if data == 0 {
		return nil
	}
	o := h.offset(data, int(n))
	return append([]byte(nil), h.mem[o:o+int(n)]...)
}

func quote(data []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range data {
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString("\\n")
		case c < 0x20 || c == 0x7F:
			fmt.Fprintf(&b, "\\%o", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// StringValue returns the bytes of a string object, or false if w is not a
// string.
func (h *Heap) StringValue(w lisp.Word) ([]byte, bool) {
	if lisp.Tag(w&7) != lisp.TagString {
		return nil, false
	}
	return h.stringBytes(w), true
}
