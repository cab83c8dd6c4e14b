// helpers_test.go: Shared test fixtures
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestPrimitives returns a token backed by crypto/rand.
func newTestPrimitives(t *testing.T) *Primitives {
	t.Helper()
	p, err := Initialize()
	require.NoError(t, err, "Initialize must succeed on a supported platform")
	return p
}

// newLoggedPrimitives returns a token whose diagnostics are written to the
// returned buffer as JSON lines.
func newLoggedPrimitives(t *testing.T) (*Primitives, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	p, err := Initialize(WithLogger(logger))
	require.NoError(t, err)
	return p, &buf
}

// sequence returns n bytes counting up from start.
func sequence(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

var errSourceExhausted = errors.New("test source exhausted")

// failingReader returns its budget of bytes from the wrapped reader and
// fails afterwards.
type failingReader struct {
	r      io.Reader
	budget int
}

func (f *failingReader) Read(b []byte) (int, error) {
	if f.budget <= 0 {
		return 0, errSourceExhausted
	}
	if len(b) > f.budget {
		b = b[:f.budget]
	}
	n, err := f.r.Read(b)
	f.budget -= n
	return n, err
}
