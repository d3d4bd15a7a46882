// Package prims collects the primitive libraries a bridge can export.
package prims

import (
	"fmt"

	"github.com/krobelus/remacs/lisp"
	"github.com/krobelus/remacs/manifest"
	"github.com/krobelus/remacs/prims/compress"
	"github.com/krobelus/remacs/prims/core"
	"github.com/krobelus/remacs/prims/encoding"
	"github.com/krobelus/remacs/prims/hash"
	"github.com/krobelus/remacs/prims/text"
)

// Version is the bridge version reported by remacs-version.
const Version = "0.1.0"

// Library is a named group of primitives.
type Library struct {
	Name        string
	Enabled     func(manifest.Features) bool
	Descriptors func() []*lisp.Descriptor
}

func always(manifest.Features) bool { return true }

// Libraries lists every library in registration order.
var Libraries = []Library{
	{"core", always, core.Descriptors},
	{"text", always, text.Exports},
	{"hash", manifest.Features.HashEnabled, hash.Descriptors},
	{"encoding", manifest.Features.EncodingEnabled, encoding.Descriptors},
	{"compress", manifest.Features.CompressionEnabled, compress.Descriptors},
}

// RegisterAll registers the libraries f selects. It returns the names of
// the libraries registered.
func RegisterAll(reg *lisp.Registry, f manifest.Features) ([]string, error) {
	var names []string
	for _, lib := range Libraries {
		if !lib.Enabled(f) {
			continue
		}
		for _, d := range lib.Descriptors() {
			if err := reg.Register(d); err != nil {
				return names, fmt.Errorf("library %s: %w", lib.Name, err)
			}
		}
		names = append(names, lib.Name)
	}

	libs := append([]string(nil), names...)
	err := reg.DefVar(&lisp.Variable{
		Name: "remacs-libraries",
		Doc:  "List of the primitive libraries the bridge registered, as symbols.",
		Init: func(env *lisp.Env) (lisp.Object, error) {
			// Symbols are never collected, so the items need no roots.
			items := make([]lisp.Object, len(libs))
			for i, name := range libs {
				sym, err := env.Intern(name)
				if err != nil {
					return lisp.Nil, err
				}
				items[i] = sym
			}
			return env.List(items...)
		},
	})
	if err != nil {
		return names, err
	}
	err = reg.DefVar(&lisp.Variable{
		Name: "remacs-version",
		Doc:  "Version string of the remacs bridge.",
		Init: func(env *lisp.Env) (lisp.Object, error) {
			return env.MakeString(Version)
		},
	})
	return names, err
}
