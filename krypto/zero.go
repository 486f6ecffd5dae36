package krypto

import "runtime"

// Zero overwrites a byte slice in place. Key material is wiped eagerly
// rather than left for the garbage collector.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
