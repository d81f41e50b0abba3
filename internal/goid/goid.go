// Package goid reports the identity of the calling goroutine.
//
// Go deliberately hides goroutine identity, but an owner-affine queue needs a
// cheap "am I the owner?" check. The ID is parsed from the header line of
// runtime.Stack, which always starts with "goroutine NNN [".
package goid

import "runtime"

const prefix = "goroutine "

// Current returns the ID of the calling goroutine, or 0 if it cannot be parsed.
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	if n <= len(prefix) {
		return 0
	}

	var id uint64
	for i := len(prefix); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
