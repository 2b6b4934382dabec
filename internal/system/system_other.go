//go:build !linux

package system

import (
	"errors"
)

var ErrInvalidSize = errors.New("system: slab size must be positive")

// No mmap here, slabs are plain heap buffers and get collected after Dealloc.
func AllocSlab(size int) ([]byte, error) {
	if size <= 0 { return nil, ErrInvalidSize }
	return make([]byte, size), nil
}

func DeallocSlab(slab []byte) error {
	return nil
}
