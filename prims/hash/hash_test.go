package hash

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/zeebo/xxh3"

	"github.com/krobelus/remacs/heap"
	"github.com/krobelus/remacs/heap/heaptest"
	"github.com/krobelus/remacs/lisp"
)

func quoted(s string) string {
	return `"` + s + `"`
}

func TestSecureHash(t *testing.T) {
	f := heaptest.New(t, heap.Config{}, Descriptors()...)
	abc := f.Str("abc")

	tests := []struct {
		alg  string
		want string
	}{
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha224", "23097d223405d8228642a477bda255b32aadbce4bda0b3f7e36c9da7"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		if got := f.MustCall("secure-hash", f.Sym(tt.alg), abc); got != quoted(tt.want) {
			t.Errorf("(secure-hash '%s \"abc\") = %s, want %s", tt.alg, got, tt.want)
		}
	}

	for _, alg := range []string{"sha384", "sha512"} {
		got := f.String(f.Raw("secure-hash", f.Sym(alg), abc))
		if want := map[string]int{"sha384": 96, "sha512": 128}[alg]; len(got) != want {
			t.Errorf("(secure-hash '%s) length = %d, want %d", alg, len(got), want)
		}
	}
}

func TestSecureHashRegionAndBinary(t *testing.T) {
	f := heaptest.New(t, heap.Config{}, Descriptors()...)
	hw := f.Str("hello world")
	md5Sym := f.Sym("md5")

	world := fmt.Sprintf("%x", md5.Sum([]byte("world")))
	if got := f.MustCall("secure-hash", md5Sym, hw, f.Int(6)); got != quoted(world) {
		t.Errorf("START 6 = %s, want md5(world)", got)
	}
	if got := f.MustCall("secure-hash", md5Sym, hw, f.Int(-5), lisp.Nil); got != quoted(world) {
		t.Errorf("START -5 = %s, want md5(world)", got)
	}
	hello := fmt.Sprintf("%x", md5.Sum([]byte("hello")))
	if got := f.MustCall("secure-hash", md5Sym, hw, lisp.Nil, f.Int(5)); got != quoted(hello) {
		t.Errorf("END 5 = %s, want md5(hello)", got)
	}

	bin := f.Raw("secure-hash", md5Sym, f.Str("abc"), lisp.Nil, lisp.Nil, f.Env.T())
	if got := hex.EncodeToString(f.Bytes(bin)); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("BINARY digest = %s", got)
	}

	data, exit := f.Call("secure-hash", md5Sym, hw, f.Int(3), f.Int(20))
	if exit == nil || exit.Symbol != "args-out-of-range" {
		t.Fatalf("END past the string exit = %+v, want args-out-of-range", exit)
	}
	if data != `("hello world" 3 20)` {
		t.Errorf("args-out-of-range data = %s", data)
	}

	_, exit = f.Call("secure-hash", f.Sym("sha3"), hw)
	if exit == nil || exit.Symbol != "error" {
		t.Errorf("unknown algorithm exit = %+v, want error", exit)
	}
}

func TestSecureHashAlgorithms(t *testing.T) {
	f := heaptest.New(t, heap.Config{Stress: true}, Descriptors()...)
	if got := f.MustCall("secure-hash-algorithms"); got != "(md5 sha1 sha224 sha256 sha384 sha512)" {
		t.Errorf("(secure-hash-algorithms) = %s", got)
	}
}

func TestMD5(t *testing.T) {
	f := heaptest.New(t, heap.Config{}, Descriptors()...)

	if got := f.MustCall("md5", f.Str("hello")); got != quoted("5d41402abc4b2a76b9719d911017c592") {
		t.Errorf(`(md5 "hello") = %s`, got)
	}

	// Multibyte text is hashed in its UTF-8 encoding.
	want := fmt.Sprintf("%x", md5.Sum([]byte("é")))
	if got := f.MustCall("md5", f.Str("é"), lisp.Nil, lisp.Nil, f.Sym("utf-8")); got != quoted(want) {
		t.Errorf(`(md5 "é" nil nil 'utf-8) = %s, want %s`, got, want)
	}

	_, exit := f.Call("md5", f.Str("x"), lisp.Nil, lisp.Nil, f.Sym("shift_jis"))
	if exit == nil || exit.Symbol != "coding-system-error" {
		t.Errorf("unknown coding system exit = %+v, want coding-system-error", exit)
	}
	if _, exit := f.Call("md5", f.Str("x"), lisp.Nil, lisp.Nil, f.Sym("shift_jis"), f.Env.T()); exit != nil {
		t.Errorf("NOERROR should suppress coding-system-error, got %s", exit.Symbol)
	}
}

func TestXXH3Hash(t *testing.T) {
	// 62-bit fixnums cannot hold every 64-bit hash; bignums carry the rest.
	f := heaptest.New(t, heap.Config{}, Descriptors()...)

	for _, s := range []string{"", "abc", strings.Repeat("x", 1000)} {
		want := fmt.Sprint(xxh3.HashString(s))
		if got := f.MustCall("xxh3-hash", f.Str(s)); got != want {
			t.Errorf("(xxh3-hash %q) = %s, want %s", s, got, want)
		}
	}

	sum := xxh3.HashString128("abc")
	want := fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
	if got := f.MustCall("xxh3-hash", f.Str("abc"), f.Env.T()); got != quoted(want) {
		t.Errorf(`(xxh3-hash "abc" t) = %s, want %s`, got, want)
	}
}
