// Package lisp implements the native side of the remacs value bridge.
//
// This package contains:
//   - the tagged word representation shared with the host runtime
//   - checked projections between host words and Go types
//   - the GC root set that keeps natively held values alive
//   - the primitive export machinery (descriptors, glue, registry)
//
// The host runtime owns the heap, the symbol table and the collector. Go code
// only ever sees host objects through Object, and pointer-tagged Objects can
// only be obtained from the host (argument frames, allocator results, intern).
package lisp
