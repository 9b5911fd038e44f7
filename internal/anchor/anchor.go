// Package anchor obtains proof-of-existence tokens for fingerprints from an
// external ledger. Every backend is reached through Guarded, which bounds the
// call with a timeout and fails fast while the ledger is down.
package anchor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Kind classifies anchoring failures.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindMalformed   Kind = "malformed"
	KindRejected    Kind = "rejected"
	KindCircuitOpen Kind = "circuit_open"
	KindCanceled    Kind = "canceled"
)

// Receipt is the proof material returned by a ledger.
type Receipt struct {
	Token      string
	Backend    string
	AnchoredAt time.Time
}

// Anchorer submits a fingerprint to a ledger. Anchoring the same fingerprint
// twice may yield two different tokens.
type Anchorer interface {
	Anchor(ctx context.Context, fingerprint string) (Receipt, error)
}

// Error is the only error type returned by anchoring.
type Error struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("anchor %s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("anchor %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnavailable
}

// KindOf extracts the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return ""
}

var errBadFingerprint = errors.New("fingerprint must be 64 hex characters")

func checkFingerprint(backend, fp string) error {
	if len(fp) != 64 {
		return &Error{Backend: backend, Kind: KindRejected, Err: errBadFingerprint}
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return &Error{Backend: backend, Kind: KindRejected, Err: errBadFingerprint}
	}
	return nil
}

// contextError converts a finished context into an anchoring failure.
func contextError(backend string, ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Backend: backend, Kind: KindTimeout, Err: ctx.Err()}
	case ctx.Err() != nil:
		return &Error{Backend: backend, Kind: KindCanceled, Err: ctx.Err()}
	}
	return nil
}
