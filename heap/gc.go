package heap

import (
	"time"

	"github.com/krobelus/remacs/lisp"
)

// CollectStats describes one collection.
type CollectStats struct {
	Marked   int
	Freed    int
	Bytes    int
	Duration time.Duration
}

// Collect runs a full mark-sweep cycle.
func (h *Heap) Collect() CollectStats {
	return h.collectWith(nil)
}

// Staticpro roots w for the lifetime of the heap.
func (h *Heap) Staticpro(w lisp.Word) {
	h.static = append(h.static, w)
}

// AddRootScanner installs scan into the marking phase.
func (h *Heap) AddRootScanner(scan func(visit func(lisp.Word))) func() {
	h.scanID++
	id := h.scanID
	h.scanners[id] = scan
	return func() {
		delete(h.scanners, id)
	}
}

func (h *Heap) collectWith(protect []lisp.Word) CollectStats {
	if h.inGC {
		return CollectStats{}
	}
	h.inGC = true
	defer func() { h.inGC = false }()

	start := time.Now()
	var work []lisp.Word
	push := func(w lisp.Word) { work = append(work, w) }

	// Symbols are never freed; their cells are roots.
	off := h.layout.Offsets
	for addr := Base; addr < h.symbolTop; addr += lisp.SymbolSize {
		push(h.get(addr + off.SymbolName))
		push(h.get(addr + off.SymbolValue))
		push(h.get(addr + off.SymbolFunction))
		push(h.get(addr + off.SymbolPlist))
	}
	work = append(work, h.static...)
	work = append(work, protect...)
	for _, f := range h.frames {
		work = append(work, f...)
	}
	for _, scan := range h.scanners {
		scan(push)
	}

	marked := 0
	for len(work) > 0 {
		w := work[len(work)-1]
		work = work[:len(work)-1]
		if h.mark(w, push) {
			marked++
		}
	}

	st := h.sweep()
	st.Marked = marked
	st.Duration = time.Since(start)

	h.sinceGC = 0
	h.stats.Collections++
	log.Debugf("gc #%d: marked %d, freed %d blocks (%d bytes) in %s",
		h.stats.Collections, st.Marked, st.Freed, st.Bytes, st.Duration)
	return st
}

// mark marks the block w refers to and pushes its children. It returns
// false for immediates, symbols and blocks already marked.
func (h *Heap) mark(w lisp.Word, push func(lisp.Word)) bool {
	switch lisp.Tag(w & 7) {
	case lisp.TagInt0, lisp.TagInt1, lisp.TagSymbol:
		return false
	}
	addr := h.address(w)
	b, ok := h.blocks[addr]
	if !ok || b.free {
		h.stats.BadRefs++
		log.Warningf("gc: reference 0x%x to unallocated memory", uint64(w))
		return false
	}
	if b.marked {
		return false
	}
	b.marked = true

	off := h.layout.Offsets
	switch b.kind {
	case kindCons:
		push(h.get(addr + off.ConsCar))
		push(h.get(addr + off.ConsCdr))
	case kindString:
		if data := uintptr(h.get(addr + off.StringData)); data != 0 {
			if db, ok := h.blocks[data]; ok {
				db.marked = true
			}
		}
	case kindVector:
		n := int(h.get(addr + off.VectorHeader))
		for i := 0; i < n; i++ {
			push(h.get(addr + off.VectorContents + uintptr(i*8)))
		}
	}
	return true
}

func (h *Heap) sweep() CollectStats {
	var st CollectStats
	for addr, b := range h.blocks {
		switch {
		case b.free:
		case b.marked:
			b.marked = false
		default:
			h.poison(addr, b.size)
			b.free = true
			h.free[b.size] = append(h.free[b.size], addr)
			st.Freed++
			st.Bytes += b.size
		}
	}
	h.stats.Freed += uint64(st.Freed)
	return st
}

func (h *Heap) poison(addr uintptr, size int) {
	for a := addr; a < addr+uintptr(size); a += 8 {
		h.put(a, PoisonWord)
	}
}
