// Package encoding exports the base64 and CBOR transfer encodings.
package encoding

import "github.com/krobelus/remacs/lisp"

// Descriptors returns the primitives of this library.
func Descriptors() []*lisp.Descriptor {
	return append(base64Descriptors(), cborDescriptors()...)
}
