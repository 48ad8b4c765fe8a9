// Package pool provides allocation-free helpers for the input and search hot paths.
package pool

import (
	"sync"
	"unsafe"
)

// DefaultTimestampCap is the capacity of a fresh pooled timestamp buffer.
const DefaultTimestampCap = 256

// BytesToString converts a byte slice to a string without allocation.
// The string shares memory with b; b must not be modified while it is in use.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes converts a string to a byte slice without allocation.
// The returned slice must never be modified.
func StringToBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Timestamps is a reusable buffer of group timestamps.
type Timestamps struct {
	Data []int64
}

var timestampPool = sync.Pool{
	New: func() interface{} {
		return &Timestamps{Data: make([]int64, 0, DefaultTimestampCap)}
	},
}

// GetTimestamps returns a buffer of length n from the pool.
func GetTimestamps(n int) *Timestamps {
	t := timestampPool.Get().(*Timestamps)
	if cap(t.Data) < n {
		t.Data = make([]int64, n)
	}
	t.Data = t.Data[:n]
	return t
}

// PutTimestamps returns a buffer to the pool.
func PutTimestamps(t *Timestamps) {
	if t == nil {
		return
	}
	t.Data = t.Data[:0]
	timestampPool.Put(t)
}
