// Package manifest handles remacs.toml bridge configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "remacs.toml"

// Manifest represents a remacs.toml configuration.
type Manifest struct {
	Bridge   Bridge   `toml:"bridge"`
	ABI      ABI      `toml:"abi"`
	Features Features `toml:"features"`
	Heap     Heap     `toml:"heap"`
	Log      Log      `toml:"log"`
	Roots    Roots    `toml:"roots"`

	// Dir is the directory containing the remacs.toml file (set at load time).
	// Empty for Default().
	Dir string `toml:"-"`
}

// Bridge names the bridge build.
type Bridge struct {
	Name string `toml:"name"`
}

// ABI pins the layout parameters the bridge expects of its host.
// Zero values mean "whatever the compiled layout says".
type ABI struct {
	FixnumBits     int `toml:"fixnum-bits"`
	LayoutVersion  int `toml:"layout-version"`
	StringEncoding int `toml:"string-encoding"`
}

// Features selects which primitive libraries are registered. Fields
// absent from the file default to enabled.
type Features struct {
	Hash        *bool `toml:"hash"`
	Encoding    *bool `toml:"encoding"`
	Compression *bool `toml:"compression"`
}

// Heap configures the reference host.
type Heap struct {
	Size        int  `toml:"size"`
	GCThreshold int  `toml:"gc-threshold"`
	Stress      bool `toml:"stress"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Roots configures the leaked-root audit.
type Roots struct {
	AuditInterval  time.Duration `toml:"audit-interval"`
	AuditThreshold time.Duration `toml:"audit-threshold"`
}

// Defaults applied to absent settings.
const (
	DefaultName           = "remacs"
	DefaultFixnumBits     = 62
	DefaultHeapSize       = 1 << 20
	DefaultGCThreshold    = 256 << 10
	DefaultVerbosity      = 1
	DefaultAuditInterval  = 30 * time.Second
	DefaultAuditThreshold = 5 * time.Minute
)

// Default returns the configuration used when no remacs.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.fill()
	return m
}

// Load parses a remacs.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.fill()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a remacs.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	if b := m.ABI.FixnumBits; b != 0 && (b < 3 || b > 62) {
		return fmt.Errorf("abi.fixnum-bits %d outside [3, 62]", b)
	}
	if m.Heap.Size < 0 || m.Heap.GCThreshold < 0 {
		return fmt.Errorf("heap sizes must not be negative")
	}
	if m.Roots.AuditInterval < 0 || m.Roots.AuditThreshold < 0 {
		return fmt.Errorf("roots durations must not be negative")
	}
	return nil
}

func (m *Manifest) fill() {
	if m.Bridge.Name == "" {
		m.Bridge.Name = DefaultName
	}
	if m.ABI.FixnumBits == 0 {
		m.ABI.FixnumBits = DefaultFixnumBits
	}
	if m.Heap.Size == 0 {
		m.Heap.Size = DefaultHeapSize
	}
	if m.Heap.GCThreshold == 0 {
		m.Heap.GCThreshold = DefaultGCThreshold
	}
	if m.Log.Verbosity == 0 {
		m.Log.Verbosity = DefaultVerbosity
	}
	if m.Roots.AuditInterval == 0 {
		m.Roots.AuditInterval = DefaultAuditInterval
	}
	if m.Roots.AuditThreshold == 0 {
		m.Roots.AuditThreshold = DefaultAuditThreshold
	}
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// HashEnabled reports whether the hash library is selected.
func (f Features) HashEnabled() bool { return enabled(f.Hash) }

// EncodingEnabled reports whether the encoding library is selected.
func (f Features) EncodingEnabled() bool { return enabled(f.Encoding) }

// CompressionEnabled reports whether the compression library is selected.
func (f Features) CompressionEnabled() bool { return enabled(f.Compression) }

// LogPath returns the configured log file, resolved against Dir, or nil
// for standard error.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) && m.Dir != "" {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}
