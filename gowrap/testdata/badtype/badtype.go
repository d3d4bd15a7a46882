// Package badtype has an export with a parameter no projection carries.
package badtype

//remacs:defun
func Send(ch chan int) {}
