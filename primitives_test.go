// primitives_test.go: Initialization and fatal diagnostics tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitialize verifies that the token exposes every primitive family
func TestInitialize(t *testing.T) {
	p := newTestPrimitives(t)

	assert.NotNil(t, p.Memory)
	assert.NotNil(t, p.Random)
	assert.NotNil(t, p.GenericHash)
	assert.NotNil(t, p.KDF)
	assert.NotNil(t, p.Symmetric)
	assert.NotNil(t, p.PasswordHash)
	assert.Greater(t, pageSize, 0, "page size must be discovered during setup")

	again := newTestPrimitives(t)
	assert.NotSame(t, p, again, "every call builds its own token")
}

// TestInitialize_FailingRandomSource verifies that a broken source is a recoverable error
func TestInitialize_FailingRandomSource(t *testing.T) {
	src := &failingReader{r: rand.Reader, budget: 0}

	p, err := Initialize(WithRandomSource(src))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrRandom), "error should wrap ErrRandom, got %v", err)

	assert.Panics(t, func() {
		MustInitialize(WithRandomSource(src))
	})
}

// TestWithRandomSource_NilKeepsDefault verifies that a nil source is ignored
func TestWithRandomSource_NilKeepsDefault(t *testing.T) {
	p, err := Initialize(WithRandomSource(nil))
	require.NoError(t, err)
	assert.Len(t, p.Random.Bytes(16), 16)
}

// TestFatal_LogsThenPanics verifies the diagnostic emitted before aborting
func TestFatal_LogsThenPanics(t *testing.T) {
	p, logs := newLoggedPrimitives(t)

	assert.Panics(t, func() {
		p.fatal(ErrCodeFatalProtection, "transition %s failed", "read-only")
	})

	line := logs.String()
	assert.Contains(t, line, `"level":"error"`)
	assert.Contains(t, line, `"code":"FATAL_PROTECTION"`)
	assert.Contains(t, line, "transition read-only failed")
}

// TestPrecondition verifies that only violated preconditions abort
func TestPrecondition(t *testing.T) {
	p, logs := newLoggedPrimitives(t)

	assert.NotPanics(t, func() {
		p.precondition(true, "never reported")
	})
	assert.Empty(t, logs.String())

	assert.Panics(t, func() {
		p.precondition(false, "size %d out of range", -1)
	})
	assert.Contains(t, logs.String(), `"code":"FATAL_PRECONDITION"`)
}

// TestRequireToken verifies that constructors refuse to run without Initialize
func TestRequireToken(t *testing.T) {
	constructors := map[string]func(){
		"NewKeyMaterial": func() { NewKeyMaterial(nil, 16) },
		"CaptureKeyMaterial": func() {
			_, _ = CaptureKeyMaterial(nil, []byte{1})
		},
		"NewSecretKey": func() { NewSecretKey(nil) },
		"NewMasterKey": func() { NewMasterKey(nil) },
		"NewHashKey":   func() { NewHashKey(nil) },
		"NewPassword": func() {
			_, _ = NewPassword(nil, "secret", UTF8)
		},
		"NewKeyring": func() { NewKeyring(nil) },
		"NewNonce":   func() { NewNonce(nil) },
	}

	for name, fn := range constructors {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, fn)
		})
	}
}

// TestFatal_NeverLogsSecrets verifies that a fatal during a read view does
// not leak the secret into the diagnostic
func TestFatal_NeverLogsSecrets(t *testing.T) {
	p, logs := newLoggedPrimitives(t)

	secret := bytes.Repeat([]byte{0xAB}, 32)
	km, err := CaptureKeyMaterial(p, secret)
	require.NoError(t, err)
	km.Destroy()

	assert.Panics(t, func() { km.CopyBytes() })
	assert.NotContains(t, strings.ToLower(logs.String()), "abab")
}
