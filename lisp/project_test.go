package lisp_test

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/krobelus/remacs/heap"
	"github.com/krobelus/remacs/lisp"
)

func newTestEnv(t *testing.T, cfg heap.Config) (*heap.Heap, *lisp.Env) {
	t.Helper()
	h := heap.New(cfg)
	env, err := lisp.Attach(h)
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}
	t.Cleanup(env.Detach)
	return h, env
}

func roundTrip[T any](t *testing.T, env *lisp.Env, p lisp.Projection[T], x T) T {
	t.Helper()
	o, err := lisp.Inject(env, p, x)
	if err != nil {
		t.Fatalf("Inject(%s, %v) error: %v", p.Expected(), x, err)
	}
	got, err := lisp.TryProject(env, p, o)
	if err != nil {
		t.Fatalf("TryProject(%s, Inject(%v)) error: %v", p.Expected(), x, err)
	}
	return got
}

// ---------------------------------------------------------------------------
// Round-trip law
// ---------------------------------------------------------------------------

func TestRoundTripFixnum(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	l := env.Layout()
	for _, n := range []int64{0, 1, -1, 1000, l.MostPositiveFixnum(), l.MostNegativeFixnum()} {
		if got := roundTrip(t, env, lisp.Fixnum, n); got != n {
			t.Errorf("Fixnum round trip %d = %d", n, got)
		}
	}
}

func TestRoundTripInteger(t *testing.T) {
	// A narrow host forces the bignum path early.
	h, env := newTestEnv(t, heap.Config{FixnumBits: 30})

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1 << 28),
		big.NewInt(1 << 29),
		big.NewInt(-(1 << 29) - 1),
		big.NewInt(math.MaxInt64),
		big.NewInt(math.MinInt64),
		huge,
		new(big.Int).Neg(huge),
	}
	for _, v := range values {
		got := roundTrip(t, env, lisp.Integer, v)
		if got.Cmp(v) != 0 {
			t.Errorf("Integer round trip %s = %s", v, got)
		}
	}

	// Past the fixnum range the value lives in the heap.
	o, _ := lisp.Inject(env, lisp.Integer, big.NewInt(1<<29))
	if o.IsFixnum() || !o.IsVectorlike() {
		t.Errorf("Inject(1<<29) on a 30-bit host = %v, want a bignum", o)
	}
	if got := h.Format(o.Word()); got != "536870912" {
		t.Errorf("Format(bignum) = %q, want 536870912", got)
	}
}

func TestRoundTripOthers(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})

	for _, f := range []float64{0, -1.5, math.Pi, math.MaxFloat64, math.Inf(-1)} {
		if got := roundTrip(t, env, lisp.Float, f); got != f {
			t.Errorf("Float round trip %v = %v", f, got)
		}
	}
	for _, c := range []rune{0, 'a', 'é', 0x1F600, 0x3FFF80, lisp.MaxChar} {
		if got := roundTrip(t, env, lisp.Char, c); got != c {
			t.Errorf("Char round trip 0x%X = 0x%X", c, got)
		}
	}
	for _, b := range []bool{true, false} {
		if got := roundTrip(t, env, lisp.Bool, b); got != b {
			t.Errorf("Bool round trip %v = %v", b, got)
		}
	}
	for _, s := range []string{"", "hello", "héllo wörld", "日本語", "raw\xff\xfebytes"} {
		if got := roundTrip(t, env, lisp.String, s); got != s {
			t.Errorf("String round trip %q = %q", s, got)
		}
	}
	for _, b := range [][]byte{{}, []byte("abc"), {0, 0x80, 0xFF}} {
		if diff := cmp.Diff(b, roundTrip(t, env, lisp.Bytes, b)); diff != "" {
			t.Errorf("Bytes round trip mismatch (-want +got):\n%s", diff)
		}
	}
	if got := roundTrip(t, env, lisp.Natnum, 7); got != 7 {
		t.Errorf("Natnum round trip 7 = %d", got)
	}

	sym := roundTrip(t, env, lisp.Symbol, lisp.SymbolRef{Name: "foo-bar"})
	if sym.Name != "foo-bar" {
		t.Errorf("Symbol round trip name = %q, want foo-bar", sym.Name)
	}
	again, _ := env.Intern("foo-bar")
	if !lisp.Eq(sym.Object, again) {
		t.Error("Intern(foo-bar) should return the same symbol")
	}
}

func TestRoundTripListAndVector(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{Stress: true})

	one, _ := env.Fixnum(1)
	s, _ := env.MakeString("a")
	l, err := env.List(one, s)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	// Stress collects on every allocation, so everything below must be
	// rooted to survive.
	hl := env.Hold(l)
	defer hl.Release()

	f, _ := env.MakeFloat(2.5)
	l2, err := env.List(one, s, f)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got := h.Format(l2.Word()); got != `(1 "a" 2.5)` {
		t.Errorf("Format(list) = %s, want (1 \"a\" 2.5)", got)
	}

	items, err := lisp.TryProject(env, lisp.List, l2)
	if err != nil || len(items) != 3 {
		t.Fatalf("TryProject(List) = %v, %v", items, err)
	}

	v, err := env.MakeVector(one, lisp.Nil, one)
	if err != nil {
		t.Fatalf("MakeVector() error: %v", err)
	}
	vv, err := lisp.TryProject(env, lisp.Vector, v)
	if err != nil {
		t.Fatalf("TryProject(Vector) error: %v", err)
	}
	if vv.Len() != 3 {
		t.Errorf("VectorView.Len() = %d, want 3", vv.Len())
	}
	two, _ := env.Fixnum(2)
	if err := vv.Set(1, two); err != nil {
		t.Fatalf("Set(1) error: %v", err)
	}
	if got := h.Format(v.Word()); got != "[1 2 1]" {
		t.Errorf("Format(vector) = %s, want [1 2 1]", got)
	}
	if _, err := vv.At(3); err == nil {
		t.Error("At(3) should be out of range")
	}
}

func TestOptional(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	p := lisp.Optional(lisp.Fixnum)

	got, err := lisp.TryProject(env, p, lisp.Nil)
	if err != nil || got.Valid {
		t.Errorf("Optional(nil) = %+v, %v; want absent", got, err)
	}
	five, _ := env.Fixnum(5)
	got, err = lisp.TryProject(env, p, five)
	if err != nil || !got.Valid || got.Value != 5 {
		t.Errorf("Optional(5) = %+v, %v; want 5", got, err)
	}
	o, _ := lisp.Inject(env, p, lisp.Opt[int64]{})
	if !o.IsNil() {
		t.Errorf("Inject(absent) = %v, want nil", o)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func projector[T any](env *lisp.Env, p lisp.Projection[T]) func(lisp.Object) error {
	return func(o lisp.Object) error {
		_, err := lisp.TryProject(env, p, o)
		return err
	}
}

func TestProjectTypeMismatch(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	n, _ := env.Fixnum(42)
	s, _ := env.MakeString("x")
	f, _ := env.MakeFloat(1)
	neg, _ := env.Fixnum(-1)

	tests := []struct {
		name     string
		project  func(lisp.Object) error
		arg      lisp.Object
		expected string
	}{
		{"string", projector(env, lisp.String), n, "stringp"},
		{"fixnum", projector(env, lisp.Fixnum), s, "fixnump"},
		{"natnum", projector(env, lisp.Natnum), neg, "natnump"},
		{"float", projector(env, lisp.Float), n, "floatp"},
		{"integer", projector(env, lisp.Integer), f, "integerp"},
		{"cons", projector(env, lisp.Cons), lisp.Nil, "consp"},
		{"list", projector(env, lisp.List), s, "listp"},
		{"symbol", projector(env, lisp.Symbol), n, "symbolp"},
		{"vector", projector(env, lisp.Vector), s, "vectorp"},
	}
	for _, tt := range tests {
		err := tt.project(tt.arg)
		var tm *lisp.TypeMismatchError
		if !errors.As(err, &tm) {
			t.Errorf("%s: TryProject(%v) = %v, want *TypeMismatchError", tt.name, tt.arg, err)
			continue
		}
		if tm.Expected != tt.expected || tm.Found != tt.arg.Tag() {
			t.Errorf("%s: mismatch = {%s, %s}, want {%s, %s}", tt.name, tm.Expected, tm.Found, tt.expected, tt.arg.Tag())
		}
	}
}

func TestInjectOverflowIsRangeError(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{FixnumBits: 30})
	_, err := lisp.Inject(env, lisp.Fixnum, 1<<40)
	var re *lisp.RangeError
	if !errors.As(err, &re) {
		t.Fatalf("Inject(Fixnum, 1<<40) = %v, want *RangeError", err)
	}
	if re.Max != 1<<29-1 {
		t.Errorf("RangeError.Max = %d, want %d", re.Max, 1<<29-1)
	}
}

func TestCircularList(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	one, _ := env.Fixnum(1)
	l, _ := env.List(one, one, one)
	c, _ := lisp.TryProject(env, lisp.Cons, l)
	last, _ := lisp.TryProject(env, lisp.Cons, c.Cdr(env))
	last, _ = lisp.TryProject(env, lisp.Cons, last.Cdr(env))
	last.SetCdr(env, l)

	_, err := lisp.TryProject(env, lisp.List, l)
	var sig *lisp.Signal
	if !errors.As(err, &sig) || sig.Symbol != "circular-list" {
		t.Errorf("TryProject(List, circular) = %v, want circular-list", err)
	}
}

// ---------------------------------------------------------------------------
// Immediate decode touches no heap
// ---------------------------------------------------------------------------

func TestImmediateDecodeNoHeapAccess(t *testing.T) {
	h, env := newTestEnv(t, heap.Config{})
	n, _ := env.Fixnum(-12345)
	c, _ := lisp.Inject(env, lisp.Char, 'λ')

	h.ResetCounters()
	for _, o := range []lisp.Object{n, c, lisp.Nil} {
		if _, err := env.Decode(o); err != nil {
			t.Fatalf("Decode(%v) error: %v", o, err)
		}
	}
	if _, err := lisp.TryProject(env, lisp.Fixnum, n); err != nil {
		t.Fatal(err)
	}
	if _, err := lisp.TryProject(env, lisp.Char, c); err != nil {
		t.Fatal(err)
	}
	if _, err := lisp.TryProject(env, lisp.Bool, lisp.Nil); err != nil {
		t.Fatal(err)
	}
	if st := h.Stats(); st.Loads != 0 || st.Stores != 0 {
		t.Errorf("immediate decode touched the heap: %d loads, %d stores", st.Loads, st.Stores)
	}
}

func TestStringViewHostIndexing(t *testing.T) {
	_, env := newTestEnv(t, heap.Config{})
	s, _ := env.MakeString("añb")
	v, err := lisp.TryProject(env, lisp.Strings, s)
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 3 || v.ByteLen() != 4 || !v.Multibyte() {
		t.Errorf("view = {len %d, bytes %d, multibyte %v}, want {3, 4, true}", v.Len(), v.ByteLen(), v.Multibyte())
	}
	if c, _ := v.CharAt(1); c != 'ñ' {
		t.Errorf("CharAt(1) = %q, want ñ", c)
	}

	u, _ := env.MakeUnibyteString([]byte{'a', 0xF1, 'b'})
	uv, _ := lisp.TryProject(env, lisp.Strings, u)
	if uv.Len() != 3 || uv.ByteLen() != 3 || uv.Multibyte() {
		t.Errorf("unibyte view = {len %d, bytes %d, multibyte %v}, want {3, 3, false}", uv.Len(), uv.ByteLen(), uv.Multibyte())
	}
	if c, _ := uv.CharAt(1); c != 0xF1 {
		t.Errorf("unibyte CharAt(1) = 0x%X, want the byte 0xF1", c)
	}
}
