package lisp

// Host is the capability the runtime hands to the bridge. The host keeps
// unrestricted access to its heap; everything here is the subset the bridge
// is allowed to request.
//
// Any Alloc* or Intern call may run a collection cycle before returning.
// Words passed as arguments to an allocator are protected by the host for
// the duration of that call only.
type Host interface {
	// Layout reports the ABI the host was built with.
	Layout() Layout

	// Raw heap access at absolute addresses.
	LoadWord(addr uintptr) Word
	StoreWord(addr uintptr, w Word)
	LoadBytes(addr uintptr, n int) []byte

	AllocCons(car, cdr Word) (Word, error)
	AllocString(data []byte, nchars int, multibyte bool) (Word, error)
	AllocVector(items []Word) (Word, error)
	AllocFloat(f float64) (Word, error)
	AllocBignum(neg bool, limbs []uint64) (Word, error)
	Intern(name string) (Word, error)

	// Epoch counts completed collection cycles.
	Epoch() uint64

	// AddRootScanner installs a function the collector calls during marking.
	// The returned function uninstalls it.
	AddRootScanner(scan func(visit func(Word))) (remove func())

	// Defsubr installs or replaces a primitive in the dispatch table.
	Defsubr(rec SubrRecord) error
	// Defvar binds a variable and its documentation.
	Defvar(name, doc string, value Word) error
}

// SubrRecord is a primitive in the shape the host dispatch table expects.
type SubrRecord struct {
	Name    string
	MinArgs int
	// MaxArgs is Many for &rest primitives and Unevalled for special forms.
	MaxArgs int
	Doc     string
	// IntSpec is the interactive spec; nil for non-commands.
	IntSpec *string
	Entry   func(args []Word) (Word, *NonlocalExit)
}

// Arity sentinels for SubrRecord.MaxArgs.
const (
	Many      = -1
	Unevalled = -2
)

// ExitKind distinguishes the host's non-local exit forms.
type ExitKind uint8

const (
	ExitSignal ExitKind = iota
	ExitThrow
)

// NonlocalExit is a failure crossing into the host. For ExitSignal, Symbol
// names the error condition and Data is the data list. For ExitThrow, Tag and
// Data are the catch tag and thrown value.
type NonlocalExit struct {
	Kind   ExitKind
	Symbol string
	Tag    Word
	Data   Word
}
