//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyRecenter calls fn on every SIGUSR1 until the returned stop func
// is called.
func notifyRecenter(fn func()) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case <-sigs:
				fn()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
