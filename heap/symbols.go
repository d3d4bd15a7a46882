package heap

import (
	"fmt"
	"sort"

	"github.com/krobelus/remacs/lisp"
)

// Intern returns the symbol named name, creating it if needed. Symbols
// live in their own area and are never collected.
func (h *Heap) Intern(name string) (lisp.Word, error) {
	if w, ok := h.symbols[name]; ok {
		return w, nil
	}
	if h.symbolTop+lisp.SymbolSize > h.symbolEnd {
		return 0, fmt.Errorf("%w: symbol area full interning %q", ErrOutOfMemory, name)
	}

	// The name is allocated first so a failure leaves no half-made symbol.
	data, nchars, multibyte := encodeName(name)
	s, err := h.AllocString(data, nchars, multibyte)
	if err != nil {
		return 0, fmt.Errorf("interning %q: %w", name, err)
	}

	addr := h.symbolTop
	h.symbolTop += lisp.SymbolSize
	w := lisp.Word(addr - Base)
	for a := addr; a < addr+lisp.SymbolSize; a += 8 {
		h.put(a, 0)
	}
	h.setSymbolField(w, h.layout.Offsets.SymbolName, s)
	h.symbols[name] = w
	return w, nil
}

// encodeName stores symbol names as unibyte when they are ASCII.
func encodeName(name string) ([]byte, int, bool) {
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return []byte(name), len([]rune(name)), true
		}
	}
	return []byte(name), len(name), false
}

func (h *Heap) setSymbolField(sym lisp.Word, off uintptr, w lisp.Word) {
	h.put(h.address(sym)+off, w)
}

func (h *Heap) symbolField(sym lisp.Word, off uintptr) lisp.Word {
	return h.get(h.address(sym) + off)
}

// SymbolValue returns the value cell of the named symbol.
func (h *Heap) SymbolValue(name string) (lisp.Word, bool) {
	w, ok := h.symbols[name]
	if !ok {
		return 0, false
	}
	return h.symbolField(w, h.layout.Offsets.SymbolValue), true
}

// SetSymbolValue sets the value cell of the named symbol, interning it.
func (h *Heap) SetSymbolValue(name string, v lisp.Word) error {
	w, err := h.Intern(name)
	if err != nil {
		return err
	}
	h.setSymbolField(w, h.layout.Offsets.SymbolValue, v)
	return nil
}

// VariableDoc returns the documentation recorded by Defvar.
func (h *Heap) VariableDoc(name string) string {
	return h.vardocs[name]
}

// Defvar binds a variable and records its documentation.
func (h *Heap) Defvar(name, doc string, value lisp.Word) error {
	if err := h.SetSymbolValue(name, value); err != nil {
		return err
	}
	h.vardocs[name] = doc
	return nil
}

// Defsubr installs rec as the function definition of its symbol. A later
// Defsubr for the same name replaces the definition.
func (h *Heap) Defsubr(rec lisp.SubrRecord) error {
	if rec.Entry == nil {
		return fmt.Errorf("defsubr %s: no entry point", rec.Name)
	}
	sym, err := h.Intern(rec.Name)
	if err != nil {
		return err
	}

	idx := len(h.subrs)
	h.subrs = append(h.subrs, rec)

	off := h.layout.Offsets
	addr, err := h.alloc(int(off.VectorContents)+8, kindSubr)
	if err != nil {
		return err
	}
	h.put(addr+off.VectorHeader, h.pvecHeader(PvecSubr))
	h.put(addr+off.VectorContents, lisp.Word(idx)<<2|lisp.Word(lisp.TagInt0))
	h.setSymbolField(sym, off.SymbolFunction, lisp.Word(addr)|lisp.Word(lisp.TagVectorlike))
	return nil
}

// subr resolves the function cell of name to its dispatch record.
func (h *Heap) subr(name string) (lisp.SubrRecord, bool) {
	sym, ok := h.symbols[name]
	if !ok {
		return lisp.SubrRecord{}, false
	}
	off := h.layout.Offsets
	fn := h.symbolField(sym, off.SymbolFunction)
	if lisp.Tag(fn&7) != lisp.TagVectorlike {
		return lisp.SubrRecord{}, false
	}
	addr := h.address(fn)
	hdr := h.get(addr + off.VectorHeader)
	if hdr != h.pvecHeader(PvecSubr) {
		return lisp.SubrRecord{}, false
	}
	idx := int(int64(h.get(addr+off.VectorContents)) >> 2)
	return h.subrs[idx], true
}

// Subr returns the dispatch record currently bound to name.
func (h *Heap) Subr(name string) (lisp.SubrRecord, bool) {
	return h.subr(name)
}

// Subrs lists the names with a primitive function definition, sorted.
func (h *Heap) Subrs() []string {
	var out []string
	for name := range h.symbols {
		if _, ok := h.subr(name); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Funcall calls the primitive bound to name. The arguments are rooted in a
// call frame for the duration of the call. A non-nil exit reports a signal
// or throw; err reports that name is not a primitive.
func (h *Heap) Funcall(name string, args ...lisp.Word) (lisp.Word, *lisp.NonlocalExit, error) {
	rec, ok := h.subr(name)
	if !ok {
		return 0, nil, fmt.Errorf("void-function %s", name)
	}

	frame := append([]lisp.Word(nil), args...)
	h.frames = append(h.frames, frame)
	defer func() { h.frames = h.frames[:len(h.frames)-1] }()

	res, exit := rec.Entry(frame)
	return res, exit, nil
}

// T returns the t symbol.
func (h *Heap) T() lisp.Word {
	return h.t
}
