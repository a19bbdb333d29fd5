// Package xsync contains goroutine helpers.
package xsync

import (
	"fmt"
)

// Go runs fn in a new goroutine and returns a channel that receives
// its error. A panic in fn is recovered and sent as an error.
func Go(fn func() error) <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer func() {
			r := recover()
			if r != nil {
				select {
				case errs <- fmt.Errorf("panic in go fn: %v", r):
				default:
				}
			}
		}()
		errs <- fn()
	}()
	return errs
}
