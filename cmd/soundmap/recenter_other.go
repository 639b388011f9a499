//go:build !unix

package main

func notifyRecenter(func()) func() {
	return func() {}
}
