// Package pdump serializes a bridge's primitive table for later
// comparison and for checking that a host still has the layout the
// table was built against.
//
// A dump file is a 12 byte header (magic, version, flags) followed by the
// canonical CBOR encoding of a Dump, zstd-compressed when FlagCompressed
// is set.
package pdump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/krobelus/remacs/lisp"
)

// Magic identifies a dump file.
var Magic = [4]byte{'R', 'D', 'M', 'P'}

// Dump format version
// v1: initial format
// v2: parameter lists and variables
const Version uint32 = 2

// HeaderSize is magic(4) + version(4) + flags(4).
const HeaderSize = 12

// Dump flags
const (
	FlagNone       uint32 = 0
	FlagCompressed uint32 = 1 << 0
)

// Errors
var (
	ErrCorruptHeader   = errors.New("pdump: corrupt header")
	ErrInvalidMagic    = errors.New("pdump: invalid magic")
	ErrVersionMismatch = errors.New("pdump: version mismatch")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("pdump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Dump is a snapshot of a registry.
type Dump struct {
	Bridge      string       `cbor:"1,keyasint"`
	Fingerprint uint64       `cbor:"2,keyasint"`
	Layout      LayoutRecord `cbor:"3,keyasint"`
	Primitives  []Primitive  `cbor:"4,keyasint"`
	Variables   []Variable   `cbor:"5,keyasint,omitempty"`
}

// Primitive is the dumped form of a descriptor.
type Primitive struct {
	Name    string  `cbor:"1,keyasint"`
	MinArgs int     `cbor:"2,keyasint"`
	MaxArgs int     `cbor:"3,keyasint"` // lisp.Many, lisp.Unevalled or a count
	Doc     string  `cbor:"4,keyasint,omitempty"`
	IntSpec *string `cbor:"5,keyasint,omitempty"`
	Params  []Param `cbor:"6,keyasint,omitempty"`
}

// Param is one declared argument.
type Param struct {
	Name     string `cbor:"1,keyasint"`
	Expected string `cbor:"2,keyasint"`
	Kind     uint8  `cbor:"3,keyasint"`
}

// Variable is a dumped DEFVAR.
type Variable struct {
	Name string `cbor:"1,keyasint"`
	Doc  string `cbor:"2,keyasint,omitempty"`
}

// LayoutRecord is the encoded form of a lisp.Layout. Offsets are listed
// in lisp.Offsets field order. The host's symbol base is not recorded.
type LayoutRecord struct {
	Version        uint32   `cbor:"1,keyasint"`
	WordBits       int      `cbor:"2,keyasint"`
	GCTypeBits     int      `cbor:"3,keyasint"`
	Tags           []uint8  `cbor:"4,keyasint"`
	Offsets        []uint64 `cbor:"5,keyasint"`
	PvecTypeShift  int      `cbor:"6,keyasint"`
	PvecBignum     int      `cbor:"7,keyasint"`
	StringEncoding int      `cbor:"8,keyasint"`
	FixnumBits     int      `cbor:"9,keyasint"`
}

// RecordLayout converts l to its encoded form.
func RecordLayout(l lisp.Layout) LayoutRecord {
	r := LayoutRecord{
		Version:        l.Version,
		WordBits:       l.WordBits,
		GCTypeBits:     l.GCTypeBits,
		Tags:           make([]uint8, len(l.Tags)),
		PvecTypeShift:  l.PvecTypeShift,
		PvecBignum:     l.PvecBignum,
		StringEncoding: l.StringEncoding,
		FixnumBits:     l.FixnumBits,
	}
	for i, t := range l.Tags {
		r.Tags[i] = uint8(t)
	}
	for _, off := range offsetFields(&l.Offsets) {
		r.Offsets = append(r.Offsets, uint64(*off))
	}
	return r
}

// Layout converts r back. It fails if r does not have the shape of a
// layout this package knows about.
func (r LayoutRecord) Layout() (lisp.Layout, error) {
	l := lisp.Layout{
		Version:        r.Version,
		WordBits:       r.WordBits,
		GCTypeBits:     r.GCTypeBits,
		PvecTypeShift:  r.PvecTypeShift,
		PvecBignum:     r.PvecBignum,
		StringEncoding: r.StringEncoding,
		FixnumBits:     r.FixnumBits,
	}
	fields := offsetFields(&l.Offsets)
	if len(r.Tags) != len(l.Tags) || len(r.Offsets) != len(fields) {
		return l, fmt.Errorf("pdump: layout record has %d tags and %d offsets, want %d and %d",
			len(r.Tags), len(r.Offsets), len(l.Tags), len(fields))
	}
	for i, t := range r.Tags {
		l.Tags[i] = lisp.Tag(t)
	}
	for i, off := range fields {
		*off = uintptr(r.Offsets[i])
	}
	return l, nil
}

func offsetFields(o *lisp.Offsets) []*uintptr {
	return []*uintptr{
		&o.ConsCar, &o.ConsCdr,
		&o.StringSize, &o.StringSizeByte, &o.StringIntervals, &o.StringData,
		&o.VectorHeader, &o.VectorContents,
		&o.FloatValue,
		&o.SymbolName, &o.SymbolValue, &o.SymbolFunction, &o.SymbolPlist,
		&o.BignumSign, &o.BignumLen, &o.BignumLimbs,
	}
}

// Fingerprint hashes the canonical encoding of l's record.
func Fingerprint(l lisp.Layout) (uint64, error) {
	return RecordLayout(l).fingerprint()
}

func (r LayoutRecord) fingerprint() (uint64, error) {
	data, err := cborEncMode.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("pdump: encode layout: %w", err)
	}
	return xxh3.Hash(data), nil
}

// Build snapshots reg, which must be sealed, against layout l.
func Build(bridge string, l lisp.Layout, reg *lisp.Registry) (*Dump, error) {
	if !reg.Sealed() {
		return nil, lisp.ErrNotReady
	}
	fp, err := Fingerprint(l)
	if err != nil {
		return nil, err
	}
	d := &Dump{Bridge: bridge, Fingerprint: fp, Layout: RecordLayout(l)}
	for _, desc := range reg.Descriptors() {
		p := Primitive{
			Name:    desc.Name(),
			MinArgs: desc.MinArgs(),
			MaxArgs: desc.MaxArgs(),
			Doc:     desc.Doc(),
		}
		if spec, ok := desc.IntSpec(); ok {
			p.IntSpec = &spec
		}
		for _, pi := range desc.Params() {
			p.Params = append(p.Params, Param{Name: pi.Name, Expected: pi.Expected, Kind: uint8(pi.Kind)})
		}
		d.Primitives = append(d.Primitives, p)
	}
	for _, v := range reg.Variables() {
		d.Variables = append(d.Variables, Variable{Name: v.Name, Doc: v.Doc})
	}
	sort.Slice(d.Variables, func(i, j int) bool { return d.Variables[i].Name < d.Variables[j].Name })
	return d, nil
}

// Lookup returns the named primitive.
func (d *Dump) Lookup(name string) (Primitive, bool) {
	i := sort.Search(len(d.Primitives), func(i int) bool { return d.Primitives[i].Name >= name })
	if i < len(d.Primitives) && d.Primitives[i].Name == name {
		return d.Primitives[i], true
	}
	return Primitive{}, false
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal serializes d with the given flags.
func Marshal(d *Dump, flags uint32) ([]byte, error) {
	body, err := cborEncMode.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("pdump: marshal: %w", err)
	}
	if flags&FlagCompressed != 0 {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		body = enc.EncodeAll(body, nil)
		enc.Close()
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(body))
	buf.Write(Magic[:])
	binary.Write(&buf, binary.LittleEndian, Version)
	binary.Write(&buf, binary.LittleEndian, flags)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Unmarshal parses a dump without checking it against a layout.
func Unmarshal(data []byte) (*Dump, error) {
	if len(data) < HeaderSize {
		return nil, ErrCorruptHeader
	}
	if !bytes.Equal(data[:4], Magic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != Version {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, Version, v)
	}
	flags := binary.LittleEndian.Uint32(data[8:])
	body := data[HeaderSize:]
	if flags&FlagCompressed != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if body, err = dec.DecodeAll(body, nil); err != nil {
			return nil, fmt.Errorf("pdump: decompress: %w", err)
		}
	}

	var d Dump
	if err := cbor.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("pdump: unmarshal: %w", err)
	}
	if _, err := d.Layout.Layout(); err != nil {
		return nil, err
	}
	fp, err := d.Layout.fingerprint()
	if err != nil {
		return nil, err
	}
	if fp != d.Fingerprint {
		return nil, fmt.Errorf("pdump: stored fingerprint %016x does not match its layout (%016x)", d.Fingerprint, fp)
	}
	return &d, nil
}

// Load parses a dump and refuses it unless it was built against current.
func Load(data []byte, current lisp.Layout) (*Dump, error) {
	d, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	fp, err := Fingerprint(current)
	if err != nil {
		return nil, err
	}
	if fp != d.Fingerprint {
		return nil, &lisp.AbiMismatchError{
			Field: "fingerprint",
			Want:  fmt.Sprintf("%016x", fp),
			Got:   fmt.Sprintf("%016x", d.Fingerprint),
		}
	}
	return d, nil
}

// WriteFile writes d to path, compressed.
func WriteFile(path string, d *Dump) error {
	data, err := Marshal(d, FlagCompressed)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadFile loads the dump at path against current.
func ReadFile(path string, current lisp.Layout) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Load(data, current)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
