package server

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/krobelus/remacs/heap"
	"github.com/krobelus/remacs/lisp"
	"github.com/krobelus/remacs/manifest"
	"github.com/krobelus/remacs/prims"
)

var log = commonlog.GetLogger("remacs.server")

// Runtime is a booted reference host with the bridge attached and the
// selected primitive libraries installed.
type Runtime struct {
	Manifest  *manifest.Manifest
	Heap      *heap.Heap
	Env       *lisp.Env
	Registry  *lisp.Registry
	Libraries []string

	audit *lisp.RootAudit
}

// Boot creates a heap configured by m, attaches to it, registers the
// libraries m enables, seals the registry and installs it.
func Boot(m *manifest.Manifest) (*Runtime, error) {
	if m == nil {
		m = manifest.Default()
	}

	h := heap.New(heap.Config{
		FixnumBits:  m.ABI.FixnumBits,
		InitialSize: m.Heap.Size,
		GCThreshold: m.Heap.GCThreshold,
		Stress:      m.Heap.Stress,
	})
	if err := checkPins(m.ABI, h.Layout()); err != nil {
		return nil, err
	}

	env, err := lisp.Attach(h)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}

	reg := lisp.NewRegistry()
	libs, err := prims.RegisterAll(reg, m.Features)
	if err != nil {
		env.Detach()
		return nil, err
	}
	reg.Seal()
	if err := reg.Install(env); err != nil {
		env.Detach()
		return nil, fmt.Errorf("install: %w", err)
	}

	audit := lisp.NewRootAudit(env.Roots(), m.Roots.AuditInterval, m.Roots.AuditThreshold)
	audit.Start()

	log.Infof("%s: %d primitives from %v", m.Bridge.Name, reg.Len(), libs)
	return &Runtime{
		Manifest:  m,
		Heap:      h,
		Env:       env,
		Registry:  reg,
		Libraries: libs,
		audit:     audit,
	}, nil
}

// checkPins compares the layout parameters a manifest pins against the
// host's. Zero pins are unset.
func checkPins(abi manifest.ABI, l lisp.Layout) error {
	switch {
	case abi.LayoutVersion != 0 && uint32(abi.LayoutVersion) != l.Version:
		return &lisp.AbiMismatchError{Field: "version", Want: abi.LayoutVersion, Got: l.Version}
	case abi.StringEncoding != 0 && abi.StringEncoding != l.StringEncoding:
		return &lisp.AbiMismatchError{Field: "string-encoding", Want: abi.StringEncoding, Got: l.StringEncoding}
	case abi.FixnumBits != 0 && abi.FixnumBits != l.FixnumBits:
		return &lisp.AbiMismatchError{Field: "fixnum-bits", Want: abi.FixnumBits, Got: l.FixnumBits}
	}
	return nil
}

// Close runs the registry's shutdown hooks and detaches from the heap.
func (r *Runtime) Close() {
	r.audit.Stop()
	r.Registry.Shutdown()
	r.Env.Detach()
}
