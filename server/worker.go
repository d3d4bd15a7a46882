package server

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/krobelus/remacs/lisp"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("eval worker stopped")

type evalRequest struct {
	fn   func(*Runtime) any
	done chan evalResult
}

type evalResult struct {
	value any
	err   error
}

// EvalWorker serializes all access to a Runtime through a single
// goroutine. The host evaluator is single threaded; LSP handlers and
// other foreign callers must go through the worker.
type EvalWorker struct {
	rt       *Runtime
	requests chan evalRequest
	quit     chan struct{}
}

// NewEvalWorker creates an EvalWorker and starts the processing goroutine.
func NewEvalWorker(rt *Runtime) *EvalWorker {
	w := &EvalWorker{
		rt:       rt,
		requests: make(chan evalRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *EvalWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, turning a panic (including a bridge fatal error) into
// an error.
func (w *EvalWorker) execute(fn func(*Runtime) any) (result evalResult) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				result.err = err
			} else {
				result.err = fmt.Errorf("%v", r)
			}
		}
	}()
	result.value = fn(w.rt)
	return result
}

// Do runs fn on the worker goroutine and blocks until it completes.
func (w *EvalWorker) Do(fn func(*Runtime) any) (any, error) {
	req := evalRequest{
		fn:   fn,
		done: make(chan evalResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop shuts down the worker goroutine. The Runtime is left open.
func (w *EvalWorker) Stop() {
	close(w.quit)
}

// Runtime returns the underlying runtime, for metadata that does not
// touch the heap (the sealed registry, the manifest).
func (w *EvalWorker) Runtime() *Runtime {
	return w.rt
}

// ExitError reports a primitive call that exited non-locally.
type ExitError struct {
	Symbol string
	Data   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s %s", e.Symbol, e.Data)
}

// Call parses args, funcalls name through the host dispatch table and
// returns the printed result. A signal is returned as an *ExitError.
func (w *EvalWorker) Call(name string, args ...string) (string, error) {
	type reply struct {
		out string
		err error
	}
	v, err := w.Do(func(rt *Runtime) any {
		out, err := rt.call(name, args)
		return reply{out, err}
	})
	if err != nil {
		return "", err
	}
	r := v.(reply)
	return r.out, r.err
}

func (rt *Runtime) call(name string, args []string) (string, error) {
	words := make([]lisp.Word, len(args))
	for i, a := range args {
		o, err := ParseArg(rt.Env, a)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i+1, err)
		}
		h := rt.Env.Hold(o)
		defer func() { _ = h.Release() }()
		words[i] = o.Word()
	}

	res, exit, err := rt.Heap.Funcall(name, words...)
	if err != nil {
		return "", err
	}
	if exit != nil {
		return "", &ExitError{Symbol: exit.Symbol, Data: rt.Heap.Format(exit.Data)}
	}
	return rt.Heap.Format(res), nil
}

// ParseArg reads a command-line argument as a lisp object: nil and t,
// 'symbol, integers (bignums when they do not fit a fixnum), floats,
// "quoted" strings with Go escapes, and anything else as a string.
func ParseArg(env *lisp.Env, s string) (lisp.Object, error) {
	switch {
	case s == "nil":
		return lisp.Nil, nil
	case s == "t":
		return env.T(), nil
	case strings.HasPrefix(s, "'") && len(s) > 1:
		return env.Intern(s[1:])
	case strings.HasPrefix(s, `"`):
		u, err := strconv.Unquote(s)
		if err != nil {
			return lisp.Nil, fmt.Errorf("bad string literal %s: %w", s, err)
		}
		return env.MakeString(u)
	}

	if n, ok := new(big.Int).SetString(s, 10); ok {
		return env.MakeInteger(n)
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return env.MakeFloat(f)
		}
	}
	return env.MakeString(s)
}
