// pool.go: Pooled scratch buffers that are wiped before reuse.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"sync"
)

const (
	smallBufferSize  = 64
	mediumBufferSize = 512
	largeBufferSize  = 4 * 1024
)

var (
	// Staging buffers for short secrets such as passwords and hex-encoded keys
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	}

	mediumBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	}

	largeBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	}
)

// getBuffer retrieves a buffer of exactly size bytes
func getBuffer(size int) *[]byte {
	switch {
	case size <= smallBufferSize:
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= mediumBufferSize:
		buf := mediumBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	case size <= largeBufferSize:
		buf := largeBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	default:
		// Too large to pool, still wiped by putBuffer
		buf := make([]byte, size)
		return &buf
	}
}

// clearBuffer zeroes buf, unrolled for large buffers
func clearBuffer(buf []byte) {
	if len(buf) <= 64 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	i := 0
	for i < len(buf)-7 {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 0
		buf[i+4] = 0
		buf[i+5] = 0
		buf[i+6] = 0
		buf[i+7] = 0
		i += 8
	}
	for i < len(buf) {
		buf[i] = 0
		i++
	}
}

// putBuffer wipes the whole capacity of buf and returns it to its pool.
// Staged secrets may have been written anywhere in the backing array.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}

	full := (*buf)[:cap(*buf)]
	clearBuffer(full)

	switch cap(full) {
	case smallBufferSize:
		smallBufferPool.Put(buf)
	case mediumBufferSize:
		mediumBufferPool.Put(buf)
	case largeBufferSize:
		largeBufferPool.Put(buf)
	}
}
