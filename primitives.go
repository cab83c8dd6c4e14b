// primitives.go: One-time initialization and the primitive operations token.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/rs/zerolog"
)

// Process-wide state established exactly once by Initialize.
var (
	initOnce sync.Once
	initErr  error
	pageSize int
)

// Primitives is the initialization token. It can only be obtained from
// Initialize, and every constructor in this package requires it, so no
// primitive runs before the process-wide setup has succeeded.
//
// The fields expose the individual primitive families. They are safe to
// share between goroutines; the key material built on top of them is not.
type Primitives struct {
	Memory       *GuardedMemory
	Random       *Random
	GenericHash  *GenericHash
	KDF          *KeyDerivation
	Symmetric    *Symmetric
	PasswordHash *PasswordHash

	logger zerolog.Logger
}

// Option configures a Primitives token.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	random io.Reader
}

// WithLogger sets the logger used for fatal diagnostics and keyring
// lifecycle events. Secret bytes are never logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRandomSource replaces crypto/rand as the source of secure random
// bytes. Intended for tests; a source that fails after Initialize
// terminates the process on the next read.
func WithRandomSource(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.random = r
		}
	}
}

// Initialize performs the process-wide setup (page size discovery, random
// self test, guarded allocation probe) the first time it is called and
// returns a token configured by opts. Later calls reuse the process-wide
// result and only build a new token.
//
// Example:
//
//	p, err := kleidi.Initialize()
//	if err != nil {
//		log.Fatal(err)
//	}
//	key := kleidi.NewSecretKey(p)
//	defer key.Destroy()
func Initialize(opts ...Option) (*Primitives, error) {
	initOnce.Do(func() {
		initErr = initializeProcess()
	})
	if initErr != nil {
		return nil, initErr
	}

	o := options{
		logger: zerolog.Nop(),
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var probe [1]byte
	if _, err := io.ReadFull(o.random, probe[:]); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRandom, "random source self test failed")
		return nil, fmt.Errorf("%w: %w", ErrRandom, richErr)
	}

	p := &Primitives{logger: o.logger}
	p.Memory = &GuardedMemory{p: p}
	p.Random = &Random{p: p, source: o.random}
	p.GenericHash = &GenericHash{p: p}
	p.KDF = &KeyDerivation{p: p}
	p.Symmetric = &Symmetric{p: p}
	p.PasswordHash = &PasswordHash{p: p}
	return p, nil
}

// MustInitialize is like Initialize but panics on failure.
func MustInitialize(opts ...Option) *Primitives {
	p, err := Initialize(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func initializeProcess() error {
	pageSize = platformPageSize()

	var probe [16]byte
	if _, err := io.ReadFull(rand.Reader, probe[:]); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRandom, "crypto/rand self test failed")
		return fmt.Errorf("%w: %w", ErrRandom, richErr)
	}

	r, err := mapRegion(1)
	if err != nil {
		return goerrors.Wrap(err, ErrCodeFatalMemory, "guarded memory probe failed")
	}
	if err := unmapRegion(r); err != nil {
		return goerrors.Wrap(err, ErrCodeFatalMemory, "guarded memory probe release failed")
	}
	return nil
}

// fatal reports an unrecoverable condition and panics. Continuing after a
// misused primitive or a broken platform call could leave secret state
// corrupted or half initialized.
func (p *Primitives) fatal(code goerrors.ErrorCode, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.logger.Error().Str("code", string(code)).Msg(msg)
	panic(goerrors.New(code, msg))
}

// precondition aborts with FATAL_PRECONDITION when ok is false.
func (p *Primitives) precondition(ok bool, format string, args ...interface{}) {
	if !ok {
		p.fatal(ErrCodeFatalPrecondition, format, args...)
	}
}

func requireToken(p *Primitives) {
	if p == nil {
		panic(goerrors.New(ErrCodeFatalPrecondition, "nil *Primitives: call Initialize first"))
	}
}
