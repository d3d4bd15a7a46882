package lisp

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("remacs.lisp")

// Env is the bridge's view of one host: its layout, its heap, and the
// roots the bridge holds in it. Every primitive receives the Env of the
// host that called it.
type Env struct {
	host     Host
	layout   Layout
	roots    *RootSet
	unscan   func()
	detached atomic.Bool

	t Object
}

// Attach checks the host layout against the compiled-in one and installs
// the bridge root set into the host collector.
func Attach(h Host) (*Env, error) {
	l := h.Layout()
	if err := CheckLayout(l); err != nil {
		return nil, err
	}
	env := &Env{
		host:   h,
		layout: l,
		roots:  NewRootSet(),
	}
	env.unscan = h.AddRootScanner(env.roots.Scan)

	t, err := h.Intern("t")
	if err != nil {
		env.Detach()
		return nil, fmt.Errorf("interning t: %w", err)
	}
	env.t = adopt(t)

	log.Infof("attached to host: layout v%d, %d-bit fixnums", l.Version, l.FixnumBits)
	return env, nil
}

// MustAttach is Attach that aborts on an ABI mismatch.
func MustAttach(h Host) *Env {
	env, err := Attach(h)
	if err != nil {
		Fatal(err)
	}
	return env
}

// Detach removes the root scanner from the host. Roots still registered
// are reported as leaks.
func (e *Env) Detach() {
	if e.detached.Swap(true) {
		return
	}
	if n := e.roots.Count(); n > 0 {
		log.Warningf("detaching with %d live roots", n)
	}
	if e.unscan != nil {
		e.unscan()
	}
}

// Host returns the underlying host capability.
func (e *Env) Host() Host {
	return e.host
}

// Layout returns the host layout.
func (e *Env) Layout() *Layout {
	return &e.layout
}

// Roots returns the bridge root set for this host.
func (e *Env) Roots() *RootSet {
	return e.roots
}

// Epoch returns the host collection count.
func (e *Env) Epoch() uint64 {
	return e.host.Epoch()
}

// T returns the canonical true value.
func (e *Env) T() Object {
	return e.t
}

// Bool returns t or nil.
func (e *Env) Bool(b bool) Object {
	if b {
		return e.t
	}
	return Nil
}

// Decode decodes o against this host's layout. No heap access.
func (e *Env) Decode(o Object) (View, error) {
	return e.layout.Decode(o)
}

// Fixnum encodes n, failing with a RangeError outside the immediate range.
func (e *Env) Fixnum(n int64) (Object, error) {
	return e.layout.MakeFixnum(n)
}

// ---------------------------------------------------------------------------
// Host heap reads
// ---------------------------------------------------------------------------

func (e *Env) field(o Object, off uintptr) Word {
	return e.host.LoadWord(e.layout.addr(o) + off)
}

func (e *Env) setField(o Object, off uintptr, w Word) {
	e.host.StoreWord(e.layout.addr(o)+off, w)
}

// car and cdr require o to be a cons.
func (e *Env) car(o Object) Object {
	return adopt(e.field(o, e.layout.Offsets.ConsCar))
}

func (e *Env) cdr(o Object) Object {
	return adopt(e.field(o, e.layout.Offsets.ConsCdr))
}

func (e *Env) floatValue(o Object) float64 {
	return math.Float64frombits(uint64(e.field(o, e.layout.Offsets.FloatValue)))
}

// vectorHeader returns the size word of a vectorlike.
func (e *Env) vectorHeader(o Object) Word {
	return e.field(o, e.layout.Offsets.VectorHeader)
}

// pvecType returns the pseudovector type, or PvecNormalVector for plain vectors.
func (e *Env) pvecType(o Object) int {
	h := e.vectorHeader(o)
	if h&PseudovectorFlag == 0 {
		return PvecNormalVector
	}
	return int((h & pvecTypeMask) >> e.layout.PvecTypeShift)
}

func (e *Env) isBignum(o Object) bool {
	return o.IsVectorlike() && e.pvecType(o) == e.layout.PvecBignum
}

func (e *Env) bignumValue(o Object) *big.Int {
	off := e.layout.Offsets
	neg := e.field(o, off.BignumSign) != 0
	n := int(e.field(o, off.BignumLen))
	raw := e.host.LoadBytes(e.layout.addr(o)+off.BignumLimbs, n*8)

	// Limbs are little-endian words, least significant first.
	be := make([]byte, len(raw))
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint64(be[(n-1-i)*8:], binary.LittleEndian.Uint64(raw[i*8:]))
	}
	v := new(big.Int).SetBytes(be)
	if neg {
		v.Neg(v)
	}
	return v
}

// ---------------------------------------------------------------------------
// Host allocation. Each of these may collect.
// ---------------------------------------------------------------------------

// Cons allocates a cons cell.
func (e *Env) Cons(car, cdr Object) (Object, error) {
	w, err := e.host.AllocCons(car.w, cdr.w)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// List allocates a proper list of items. Items are rooted while the spine
// is built back to front.
func (e *Env) List(items ...Object) (Object, error) {
	var out Object
	err := e.Protect(func(s *Scope) error {
		for _, it := range items {
			s.Root(it)
		}
		tail := s.Hold(Nil)
		for i := len(items) - 1; i >= 0; i-- {
			prev, err := tail.Get()
			if err != nil {
				return err
			}
			c, err := e.Cons(items[i], prev)
			if err != nil {
				return err
			}
			if err := tail.Set(c); err != nil {
				return err
			}
		}
		var err error
		out, err = tail.Get()
		return err
	})
	return out, err
}

// MakeString allocates a host string holding the Go string s.
func (e *Env) MakeString(s string) (Object, error) {
	data, nchars, multibyte := encodeGoString(s)
	w, err := e.host.AllocString(data, nchars, multibyte)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// MakeUnibyteString allocates a unibyte host string holding b.
func (e *Env) MakeUnibyteString(b []byte) (Object, error) {
	w, err := e.host.AllocString(b, len(b), false)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// MakeVector allocates a vector holding items.
func (e *Env) MakeVector(items ...Object) (Object, error) {
	ws := make([]Word, len(items))
	for i, it := range items {
		ws[i] = it.w
	}
	w, err := e.host.AllocVector(ws)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// MakeFloat allocates a boxed float.
func (e *Env) MakeFloat(f float64) (Object, error) {
	w, err := e.host.AllocFloat(f)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// MakeInteger returns a fixnum when v fits the immediate range and a host
// bignum otherwise.
func (e *Env) MakeInteger(v *big.Int) (Object, error) {
	if v.IsInt64() && e.layout.FixnumInRange(v.Int64()) {
		return e.layout.Encode(ImmFixnum, v.Int64())
	}
	be := new(big.Int).Abs(v).Bytes()
	n := (len(be) + 7) / 8
	padded := make([]byte, n*8)
	copy(padded[n*8-len(be):], be)
	limbs := make([]uint64, n)
	for i := 0; i < n; i++ {
		limbs[i] = binary.BigEndian.Uint64(padded[(n-1-i)*8:])
	}
	w, err := e.host.AllocBignum(v.Sign() < 0, limbs)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// Intern returns the symbol named name, creating it if needed.
func (e *Env) Intern(name string) (Object, error) {
	w, err := e.host.Intern(name)
	if err != nil {
		return Nil, err
	}
	return adopt(w), nil
}

// symbolName reads the name of a symbol.
func (e *Env) symbolName(o Object) string {
	name := adopt(e.field(o, e.layout.Offsets.SymbolName))
	return e.stringView(name).String()
}
