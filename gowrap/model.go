// Package gowrap scans Go packages for functions marked with a
// //remacs:defun directive and generates the code that registers them as
// primitives.
//
// A marked function looks like this:
//
//	// Return non-nil if PREFIX is a prefix of STR.
//	//
//	//remacs:defun name=string-prefix-p min=2
//	func StringPrefixP(prefix, str string, ignoreCase bool) bool
//
// The doc comment becomes the docstring. Parameters may be lisp.Object or
// any Go type with a projection (string, int64, float64, bool, rune,
// []byte, *big.Int, lisp.SymbolRef, []lisp.Object, *lisp.StringView,
// *lisp.VectorView); a leading *lisp.Env receives the call's
// environment and a trailing variadic parameter becomes &rest. Results
// follow the same mapping, optionally followed by an error.
package gowrap

// PackageModel is the set of exported functions found in one package.
type PackageModel struct {
	ImportPath string
	Name       string // package name, e.g. "text"
	Dir        string
	Functions  []FunctionModel
}

// FunctionModel is one //remacs:defun function.
type FunctionModel struct {
	GoName   string
	LispName string
	Doc      string
	IntSpec  *string

	// MinArgs is the number of required parameters; the remaining fixed
	// parameters are &optional.
	MinArgs int
	Params  []ParamModel
	Rest    *ParamModel

	TakesEnv   bool
	Result     string // type key, empty for no value
	ReturnsErr bool
}

// MaxArgs is the declared arity as a SubrRecord reports it: -1 for &rest.
func (fn *FunctionModel) MaxArgs() int {
	if fn.Rest != nil {
		return -1
	}
	return len(fn.Params)
}

// ParamModel is one parameter.
type ParamModel struct {
	GoName   string
	LispName string
	Type     string // type key, see typeKeys
}
