// Package heap is an in-process reference host for the lisp bridge.
//
// It lays objects out in a byte arena exactly as the compiled-in Layout
// describes, keeps a symbol table whose first entry is nil, and runs a
// mark-sweep collector that marks from the symbol table, static roots,
// live call frames and every installed root scanner. Freed blocks are
// poisoned and reused last-in first-out, so a word held across a
// collection without a root reads back as garbage with the unused tag.
//
// A Heap is not safe for concurrent use; like the evaluator it stands in
// for, it belongs to one goroutine.
package heap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/krobelus/remacs/lisp"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("remacs.heap")

// ErrOutOfMemory is returned when an allocation does not fit even after a
// collection.
var ErrOutOfMemory = errors.New("heap: out of memory")

// PoisonWord fills freed blocks. Its low bits are the unused tag.
const PoisonWord lisp.Word = 0x0909090909090909

// PvecSubr is the pseudovector type of primitive function objects.
const PvecSubr = 16

// Base is the arena's first address. Symbols start here, so nil (symbol
// offset 0) is the word 0.
const Base uintptr = 0x100000

// Config selects heap parameters. Zero fields take defaults.
type Config struct {
	// FixnumBits is the immediate integer width reported in the layout.
	FixnumBits int
	// Symbols is the capacity of the symbol area.
	Symbols int
	// InitialSize is the starting arena size in bytes.
	InitialSize int
	// MaxSize bounds the arena; 0 means unbounded.
	MaxSize int
	// GCThreshold is the number of bytes allocated between collections;
	// 0 disables automatic collection.
	GCThreshold int
	// Stress collects before every allocation.
	Stress bool
}

const (
	defaultSymbols     = 4096
	defaultInitialSize = 1 << 20
)

type kind uint8

const (
	kindCons kind = iota + 1
	kindFloat
	kindString
	kindData
	kindVector
	kindBignum
	kindSubr
)

func (k kind) String() string {
	return [...]string{"?", "cons", "float", "string", "data", "vector", "bignum", "subr"}[k]
}

type block struct {
	size   int
	kind   kind
	marked bool
	free   bool
}

// Stats are the heap's instrumentation counters.
type Stats struct {
	Loads       uint64
	Stores      uint64
	Allocations uint64
	Allocated   uint64
	Collections uint64
	Freed       uint64
	LiveBytes   int
	BadRefs     uint64
}

var _ lisp.Host = (*Heap)(nil)

// Heap is the reference host.
type Heap struct {
	layout lisp.Layout
	cfg    Config

	mem      []byte
	top      uintptr
	heapBase uintptr
	blocks   map[uintptr]*block
	free     map[int][]uintptr

	symbols   map[string]lisp.Word
	symbolTop uintptr
	symbolEnd uintptr

	subrs    []lisp.SubrRecord
	vardocs  map[string]string
	static   []lisp.Word
	frames   [][]lisp.Word
	scanners map[int]func(visit func(lisp.Word))
	scanID   int

	sinceGC int
	inGC    bool
	stats   Stats
	t       lisp.Word
}

// New creates a heap with nil and t interned.
func New(cfg Config) *Heap {
	if cfg.FixnumBits == 0 {
		cfg.FixnumBits = lisp.MaxFixnumBits
	}
	if cfg.Symbols <= 0 {
		cfg.Symbols = defaultSymbols
	}
	if cfg.InitialSize <= 0 {
		cfg.InitialSize = defaultInitialSize
	}

	l := lisp.NativeLayout()
	l.FixnumBits = cfg.FixnumBits
	l.SymbolBase = Base

	symbolBytes := uintptr(cfg.Symbols * lisp.SymbolSize)
	h := &Heap{
		layout:    l,
		cfg:       cfg,
		mem:       make([]byte, int(symbolBytes)+cfg.InitialSize),
		blocks:    make(map[uintptr]*block),
		free:      make(map[int][]uintptr),
		symbols:   make(map[string]lisp.Word),
		symbolTop: Base,
		symbolEnd: Base + symbolBytes,
		vardocs:   make(map[string]string),
		scanners:  make(map[int]func(visit func(lisp.Word))),
	}
	h.heapBase = h.symbolEnd
	h.top = h.heapBase

	if _, err := h.Intern("nil"); err != nil {
		panic(err)
	}
	t, err := h.Intern("t")
	if err != nil {
		panic(err)
	}
	h.t = t
	h.setSymbolField(t, h.layout.Offsets.SymbolValue, t)
	return h
}

// Layout reports the heap's ABI.
func (h *Heap) Layout() lisp.Layout {
	return h.layout
}

// Stats returns a snapshot of the counters.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.LiveBytes = 0
	for _, b := range h.blocks {
		if !b.free {
			s.LiveBytes += b.size
		}
	}
	return s
}

// ResetCounters zeroes the load and store counters.
func (h *Heap) ResetCounters() {
	h.stats.Loads = 0
	h.stats.Stores = 0
}

// Epoch returns the number of completed collections.
func (h *Heap) Epoch() uint64 {
	return h.stats.Collections
}

// ---------------------------------------------------------------------------
// Raw memory
// ---------------------------------------------------------------------------

func (h *Heap) offset(addr uintptr, n int) int {
	if addr < Base || addr+uintptr(n) > Base+uintptr(len(h.mem)) {
		panic(fmt.Sprintf("heap: access of %d bytes at 0x%x outside arena", n, addr))
	}
	return int(addr - Base)
}

// LoadWord reads the word at addr.
func (h *Heap) LoadWord(addr uintptr) lisp.Word {
	h.stats.Loads++
	off := h.offset(addr, 8)
	return lisp.Word(binary.LittleEndian.Uint64(h.mem[off:]))
}

// StoreWord writes the word at addr.
func (h *Heap) StoreWord(addr uintptr, w lisp.Word) {
	h.stats.Stores++
	off := h.offset(addr, 8)
	binary.LittleEndian.PutUint64(h.mem[off:], uint64(w))
}

// LoadBytes returns a copy of n bytes at addr.
func (h *Heap) LoadBytes(addr uintptr, n int) []byte {
	h.stats.Loads++
	off := h.offset(addr, n)
	out := make([]byte, n)
	copy(out, h.mem[off:off+n])
	return out
}

func (h *Heap) put(addr uintptr, w lisp.Word) {
	binary.LittleEndian.PutUint64(h.mem[h.offset(addr, 8):], uint64(w))
}

func (h *Heap) get(addr uintptr) lisp.Word {
	return lisp.Word(binary.LittleEndian.Uint64(h.mem[h.offset(addr, 8):]))
}

// address returns where w points. Symbols are offsets from Base.
func (h *Heap) address(w lisp.Word) uintptr {
	if lisp.Tag(w&7) == lisp.TagSymbol {
		return Base + uintptr(w)
	}
	return uintptr(w &^ 7)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func roundUp(n int) int {
	return (n + 7) &^ 7
}

// alloc reserves size bytes, collecting first when the threshold is
// crossed. protect lists words that must survive that collection.
func (h *Heap) alloc(size int, k kind, protect ...lisp.Word) (uintptr, error) {
	size = roundUp(size)
	if !h.inGC && (h.cfg.Stress || (h.cfg.GCThreshold > 0 && h.sinceGC+size > h.cfg.GCThreshold)) {
		h.collectWith(protect)
	}

	addr, ok := h.take(size)
	if !ok {
		h.collectWith(protect)
		if addr, ok = h.take(size); !ok {
			if !h.grow(size) {
				return 0, fmt.Errorf("%w: %d byte %s", ErrOutOfMemory, size, k)
			}
			addr, _ = h.take(size)
		}
	}

	// Reused blocks still hold poison.
	off := h.offset(addr, size)
	clear(h.mem[off : off+size])

	h.blocks[addr] = &block{size: size, kind: k}
	h.sinceGC += size
	h.stats.Allocations++
	h.stats.Allocated += uint64(size)
	return addr, nil
}

// take pops a free block of exactly size bytes, or bumps the top.
func (h *Heap) take(size int) (uintptr, bool) {
	if list := h.free[size]; len(list) > 0 {
		addr := list[len(list)-1]
		h.free[size] = list[:len(list)-1]
		delete(h.blocks, addr)
		return addr, true
	}
	if h.top+uintptr(size) > Base+uintptr(len(h.mem)) {
		return 0, false
	}
	addr := h.top
	h.top += uintptr(size)
	return addr, true
}

func (h *Heap) grow(size int) bool {
	n := len(h.mem) * 2
	for n-int(h.top-Base) < size {
		n *= 2
	}
	if h.cfg.MaxSize > 0 && n > h.cfg.MaxSize {
		n = h.cfg.MaxSize
		if n-int(h.top-Base) < size {
			return false
		}
	}
	log.Debugf("growing arena to %d bytes", n)
	h.mem = append(h.mem, make([]byte, n-len(h.mem))...)
	return true
}

// AllocCons allocates a cons cell.
func (h *Heap) AllocCons(car, cdr lisp.Word) (lisp.Word, error) {
	addr, err := h.alloc(lisp.ConsSize, kindCons, car, cdr)
	if err != nil {
		return 0, err
	}
	off := h.layout.Offsets
	h.put(addr+off.ConsCar, car)
	h.put(addr+off.ConsCdr, cdr)
	return lisp.Word(addr) | lisp.Word(lisp.TagCons), nil
}

// AllocFloat allocates a boxed float.
func (h *Heap) AllocFloat(f float64) (lisp.Word, error) {
	addr, err := h.alloc(lisp.FloatSize, kindFloat)
	if err != nil {
		return 0, err
	}
	h.put(addr+h.layout.Offsets.FloatValue, lisp.Word(math.Float64bits(f)))
	return lisp.Word(addr) | lisp.Word(lisp.TagFloat), nil
}

// AllocString allocates a string header and its NUL-terminated data.
func (h *Heap) AllocString(data []byte, nchars int, multibyte bool) (lisp.Word, error) {
	addr, err := h.alloc(lisp.StringSize, kindString)
	if err != nil {
		return 0, err
	}
	w := lisp.Word(addr) | lisp.Word(lisp.TagString)

	// The header has a null data pointer until the data block exists; the
	// collector skips it but keeps the header.
	daddr, err := h.alloc(len(data)+1, kindData, w)
	if err != nil {
		return 0, err
	}
	copy(h.mem[h.offset(daddr, len(data)):], data)

	off := h.layout.Offsets
	sizeByte := int64(-1)
	if multibyte {
		sizeByte = int64(len(data))
	}
	h.put(addr+off.StringSize, lisp.Word(nchars))
	h.put(addr+off.StringSizeByte, lisp.Word(sizeByte))
	h.put(addr+off.StringIntervals, 0)
	h.put(addr+off.StringData, lisp.Word(daddr))
	return w, nil
}

// AllocVector allocates a plain vector.
func (h *Heap) AllocVector(items []lisp.Word) (lisp.Word, error) {
	addr, err := h.alloc(8+8*len(items), kindVector, items...)
	if err != nil {
		return 0, err
	}
	off := h.layout.Offsets
	h.put(addr+off.VectorHeader, lisp.Word(len(items)))
	for i, it := range items {
		h.put(addr+off.VectorContents+uintptr(i*8), it)
	}
	return lisp.Word(addr) | lisp.Word(lisp.TagVectorlike), nil
}

func (h *Heap) pvecHeader(typ int) lisp.Word {
	return lisp.PseudovectorFlag | lisp.Word(typ)<<h.layout.PvecTypeShift
}

// AllocBignum allocates a bignum pseudovector with little-endian limbs.
func (h *Heap) AllocBignum(neg bool, limbs []uint64) (lisp.Word, error) {
	off := h.layout.Offsets
	addr, err := h.alloc(int(off.BignumLimbs)+8*len(limbs), kindBignum)
	if err != nil {
		return 0, err
	}
	h.put(addr+off.VectorHeader, h.pvecHeader(h.layout.PvecBignum))
	sign := lisp.Word(0)
	if neg {
		sign = 1
	}
	h.put(addr+off.BignumSign, sign)
	h.put(addr+off.BignumLen, lisp.Word(len(limbs)))
	for i, l := range limbs {
		h.put(addr+off.BignumLimbs+uintptr(i*8), lisp.Word(l))
	}
	return lisp.Word(addr) | lisp.Word(lisp.TagVectorlike), nil
}

// IsLive reports whether w refers to an allocated, unfreed object.
// Immediates and symbols are always live.
func (h *Heap) IsLive(w lisp.Word) bool {
	switch lisp.Tag(w & 7) {
	case lisp.TagInt0, lisp.TagInt1, lisp.TagSymbol:
		return true
	}
	b, ok := h.blocks[h.address(w)]
	return ok && !b.free
}
