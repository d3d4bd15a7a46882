package lisp

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var rootLog = commonlog.GetLogger("remacs.roots")

// ---------------------------------------------------------------------------
// RootSet: values the native side needs the host collector to keep alive
// ---------------------------------------------------------------------------

// Token is a ticket for one registered root. The zero Token is never live.
type Token struct {
	id  uint64
	set *RootSet
}

// IsZero returns true for the zero Token.
func (t Token) IsZero() bool {
	return t.id == 0
}

type rootEntry struct {
	w     Word
	since time.Time
}

// RootSet tracks the words registered as collector roots. The host calls
// Scan during marking.
type RootSet struct {
	mu     sync.Mutex
	roots  map[uint64]rootEntry
	nextID atomic.Uint64

	registered atomic.Uint64
	released   atomic.Uint64
}

// RootStats counts root traffic since the set was created.
type RootStats struct {
	Registered uint64
	Released   uint64
	Live       int
}

// NewRootSet creates an empty root set.
func NewRootSet() *RootSet {
	return &RootSet{
		roots: make(map[uint64]rootEntry),
	}
}

// Register roots o and returns its token. Immediates are registered too so
// token bookkeeping does not depend on the value kind.
func (rs *RootSet) Register(o Object) Token {
	id := rs.nextID.Add(1)

	rs.mu.Lock()
	rs.roots[id] = rootEntry{w: o.w, since: time.Now()}
	rs.mu.Unlock()

	rs.registered.Add(1)
	return Token{id: id, set: rs}
}

// Release drops the root behind t. Releasing twice returns ErrRootReleased
// and changes nothing.
func (rs *RootSet) Release(t Token) error {
	if t.set != rs {
		return ErrRootReleased
	}
	rs.mu.Lock()
	_, ok := rs.roots[t.id]
	delete(rs.roots, t.id)
	rs.mu.Unlock()

	if !ok {
		return ErrRootReleased
	}
	rs.released.Add(1)
	return nil
}

// Live reports whether t is still registered.
func (rs *RootSet) Live(t Token) bool {
	if t.set != rs {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.roots[t.id]
	return ok
}

// Get returns the value rooted by t.
func (rs *RootSet) Get(t Token) (Object, error) {
	if t.set != rs {
		return Nil, ErrRootReleased
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.roots[t.id]
	if !ok {
		return Nil, ErrRootReleased
	}
	return adopt(e.w), nil
}

// Update replaces the value rooted by t.
func (rs *RootSet) Update(t Token, o Object) error {
	if t.set != rs {
		return ErrRootReleased
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e, ok := rs.roots[t.id]
	if !ok {
		return ErrRootReleased
	}
	e.w = o.w
	rs.roots[t.id] = e
	return nil
}

// Contains reports whether o is rooted by at least one token.
func (rs *RootSet) Contains(o Object) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, e := range rs.roots {
		if e.w == o.w {
			return true
		}
	}
	return false
}

// Count returns the number of live roots.
func (rs *RootSet) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.roots)
}

// Stats returns registration counters.
func (rs *RootSet) Stats() RootStats {
	return RootStats{
		Registered: rs.registered.Load(),
		Released:   rs.released.Load(),
		Live:       rs.Count(),
	}
}

// Scan visits every rooted word. Installed into the host collector.
func (rs *RootSet) Scan(visit func(Word)) {
	rs.mu.Lock()
	ws := make([]Word, 0, len(rs.roots))
	for _, e := range rs.roots {
		ws = append(ws, e.w)
	}
	rs.mu.Unlock()

	for _, w := range ws {
		visit(w)
	}
}

// RootInfo describes one live root for auditing.
type RootInfo struct {
	Word Word
	Age  time.Duration
}

// Older returns the roots registered longer than d ago, oldest first.
func (rs *RootSet) Older(d time.Duration) []RootInfo {
	now := time.Now()
	rs.mu.Lock()
	var out []RootInfo
	for _, e := range rs.roots {
		if age := now.Sub(e.since); age > d {
			out = append(out, RootInfo{Word: e.w, Age: age})
		}
	}
	rs.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Age > out[j].Age })
	return out
}
