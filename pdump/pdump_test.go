package pdump

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/krobelus/remacs/lisp"
)

func sealed(t *testing.T, ds ...*lisp.Descriptor) *lisp.Registry {
	t.Helper()
	reg := lisp.NewRegistry()
	reg.MustRegister(ds...)
	if err := reg.DefVar(&lisp.Variable{
		Name: "remacs-version",
		Doc:  "Bridge version string.",
		Init: func(env *lisp.Env) (lisp.Object, error) { return env.MakeString("1") },
	}); err != nil {
		t.Fatal(err)
	}
	reg.Seal()
	return reg
}

func identity() *lisp.Descriptor {
	return lisp.Defun("identity").Doc("Return the ARGUMENT unchanged.").
		Arg("argument", lisp.ParamOf(lisp.Any)).
		MustBody(func(c *lisp.Call) (lisp.Object, error) { return c.Raw(0), nil })
}

func command() *lisp.Descriptor {
	return lisp.Defun("beep").Doc("Beep.").Interactive("p").
		Optional("arg", lisp.ParamOf(lisp.Fixnum)).
		MustBody(func(c *lisp.Call) (lisp.Object, error) { return lisp.Nil, nil })
}

func TestBuild(t *testing.T) {
	l := lisp.NativeLayout()
	d, err := Build("test", l, sealed(t, identity(), command()))
	if err != nil {
		t.Fatal(err)
	}

	p := "p"
	want := []Primitive{
		{Name: "beep", MinArgs: 0, MaxArgs: 1, Doc: "Beep.", IntSpec: &p,
			Params: []Param{{Name: "ARG", Expected: "fixnump", Kind: uint8(lisp.OptionalArg)}}},
		{Name: "identity", MinArgs: 1, MaxArgs: 1, Doc: "Return the ARGUMENT unchanged.",
			Params: []Param{{Name: "ARGUMENT", Expected: "t", Kind: uint8(lisp.Required)}}},
	}
	if diff := cmp.Diff(want, d.Primitives); diff != "" {
		t.Errorf("Build() primitives mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Variable{{Name: "remacs-version", Doc: "Bridge version string."}}, d.Variables); diff != "" {
		t.Errorf("Build() variables mismatch (-want +got):\n%s", diff)
	}
	if _, ok := d.Lookup("identity"); !ok {
		t.Error("Lookup(identity) = false")
	}
	if _, ok := d.Lookup("car"); ok {
		t.Error("Lookup(car) = true")
	}

	if _, err := Build("test", l, lisp.NewRegistry()); !errors.Is(err, lisp.ErrNotReady) {
		t.Errorf("Build(unsealed) = %v, want ErrNotReady", err)
	}
}

func TestFingerprint(t *testing.T) {
	l := lisp.NativeLayout()
	a, err := Fingerprint(l)
	if err != nil {
		t.Fatal(err)
	}
	l.SymbolBase = 0x200000
	if b, _ := Fingerprint(l); b != a {
		t.Error("symbol base should not affect the fingerprint")
	}
	l.Offsets.ConsCdr = 16
	if c, _ := Fingerprint(l); c == a {
		t.Error("changed offsets should change the fingerprint")
	}
}

func TestLayoutRecord(t *testing.T) {
	l := lisp.NativeLayout()
	l.SymbolBase = 0x1000
	got, err := RecordLayout(l).Layout()
	if err != nil {
		t.Fatal(err)
	}
	l.SymbolBase = 0
	if diff := cmp.Diff(l, got); diff != "" {
		t.Errorf("Layout() mismatch (-want +got):\n%s", diff)
	}

	short := RecordLayout(l)
	short.Offsets = short.Offsets[:3]
	if _, err := short.Layout(); err == nil {
		t.Error("Layout() accepted a record with missing offsets")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	l := lisp.NativeLayout()
	d, err := Build("test", l, sealed(t, identity(), command()))
	if err != nil {
		t.Fatal(err)
	}

	for _, flags := range []uint32{FlagNone, FlagCompressed} {
		data, err := Marshal(d, flags)
		if err != nil {
			t.Fatalf("Marshal(flags=%d) error: %v", flags, err)
		}
		got, err := Load(data, l)
		if err != nil {
			t.Fatalf("Load(flags=%d) error: %v", flags, err)
		}
		if diff := cmp.Diff(d, got); diff != "" {
			t.Errorf("round trip (flags=%d) mismatch (-want +got):\n%s", flags, diff)
		}
	}

	// Canonical encoding: equal dumps are equal bytes.
	a, _ := Marshal(d, FlagNone)
	again, _ := Build("test", l, sealed(t, command(), identity()))
	b, _ := Marshal(again, FlagNone)
	if string(a) != string(b) {
		t.Error("registration order changed the dump bytes")
	}
}

func TestLoadRefusesOtherLayout(t *testing.T) {
	l := lisp.NativeLayout()
	d, _ := Build("test", l, sealed(t, identity()))
	data, _ := Marshal(d, FlagNone)

	other := l
	other.FixnumBits = 30
	_, err := Load(data, other)
	if !errors.Is(err, lisp.ErrAbiMismatch) {
		t.Fatalf("Load(other layout) = %v, want ErrAbiMismatch", err)
	}
	var am *lisp.AbiMismatchError
	if !errors.As(err, &am) || am.Field != "fingerprint" {
		t.Errorf("Load(other layout) = %v, want a fingerprint mismatch", err)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	l := lisp.NativeLayout()
	d, _ := Build("test", l, sealed(t, identity()))
	good, _ := Marshal(d, FlagNone)

	badMagic := append([]byte("XXXX"), good[4:]...)
	badVersion := append([]byte(nil), good...)
	badVersion[4] = 99
	tampered := *d
	tampered.Fingerprint++
	forged, _ := Marshal(&tampered, FlagNone)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", good[:5], ErrCorruptHeader},
		{"magic", badMagic, ErrInvalidMagic},
		{"version", badVersion, ErrVersionMismatch},
	}
	for _, tt := range tests {
		if _, err := Unmarshal(tt.data); !errors.Is(err, tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := Unmarshal(forged); err == nil {
		t.Error("Unmarshal accepted a fingerprint that does not match its layout")
	}
	if _, err := Unmarshal(good[:len(good)-3]); err == nil {
		t.Error("Unmarshal accepted a truncated body")
	}
}

func TestFiles(t *testing.T) {
	l := lisp.NativeLayout()
	d, _ := Build("test", l, sealed(t, identity()))
	path := filepath.Join(t.TempDir(), "bridge.pdmp")
	if err := WriteFile(path, d); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path, l)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bridge != "test" || len(got.Primitives) != 1 {
		t.Errorf("ReadFile() = %+v", got)
	}
}

func TestDiff(t *testing.T) {
	s := "p"
	old := &Dump{Primitives: []Primitive{
		{Name: "a", MinArgs: 1, MaxArgs: 1},
		{Name: "b", MinArgs: 1, MaxArgs: 1, Doc: "B."},
		{Name: "c", MinArgs: 0, MaxArgs: lisp.Many},
	}}
	new := &Dump{Primitives: []Primitive{
		{Name: "b", MinArgs: 1, MaxArgs: 2, Doc: "B!", IntSpec: &s},
		{Name: "c", MinArgs: 0, MaxArgs: lisp.Many},
		{Name: "d", MinArgs: 0, MaxArgs: 0},
	}}

	got := Diff(old, new)
	want := []Change{
		{Kind: Removed, Name: "a"},
		{Kind: Changed, Name: "b", Fields: []string{"arity", "doc", "interactive"}},
		{Kind: Added, Name: "d"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
	if got[1].String() != "changed b (arity, doc, interactive)" {
		t.Errorf("Change.String() = %q", got[1].String())
	}
	if len(Diff(new, new)) != 0 {
		t.Error("Diff of a dump with itself should be empty")
	}
}
