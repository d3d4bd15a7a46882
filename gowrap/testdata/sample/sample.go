// Package sample is scanned by the gowrap tests.
package sample

import (
	"math/big"

	"github.com/krobelus/remacs/lisp"
)

// Return ARG unchanged.
//
//remacs:defun name=sample-identity
func Identity(arg lisp.Object) lisp.Object {
	return arg
}

// Return the sum of NUMS.
//
//remacs:defun
func SampleSum(nums ...*big.Int) *big.Int {
	sum := new(big.Int)
	for _, n := range nums {
		sum.Add(sum, n)
	}
	return sum
}

// Ring the bell COUNT times.
//
//remacs:defun min=0 intspec="p"
func SampleBeep(env *lisp.Env, count int64) error {
	if count < 0 {
		return lisp.Errorf("Negative count")
	}
	return nil
}

//remacs:defun
func SampleNothing() {}

// Helper has no directive and is not exported.
func Helper() {}
