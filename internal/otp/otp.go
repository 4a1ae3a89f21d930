// Package otp issues and checks the short numeric codes used to prove that
// pickup and dropoff physically happened. It is a pure decision layer: it
// never touches booking state, and the caller owns attempt bookkeeping.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

const CodeLength = 6

// Verification failure reasons
const (
	ReasonExpired         = "EXPIRED"
	ReasonMismatch        = "MISMATCH"
	ReasonMaxAttempts     = "MAX_ATTEMPTS"
	ReasonAlreadyVerified = "ALREADY_VERIFIED"
)

// Record is the stored state of one verification phase. ExpiresAt is nil for
// codes that never expire (dropoff codes outlive unpredictable trip lengths).
type Record struct {
	Code      string
	ExpiresAt *time.Time
	Attempts  int
	Verified  bool
}

type Result struct {
	Valid  bool
	Reason string
}

var codeSpace = big.NewInt(1000000)

// Generate returns a fixed-length numeric code from a cryptographically
// sound source. A nil expiry produces a code with no expiry.
func Generate(expiry *time.Duration) (*Record, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Code: fmt.Sprintf("%06d", n.Int64()),
	}
	if expiry != nil {
		t := time.Now().Add(*expiry)
		rec.ExpiresAt = &t
	}
	return rec, nil
}

// Verify checks a submitted code against a record. The caller must increment
// the record's attempt counter before calling, on every attempt, success or
// failure; Verify itself mutates nothing.
func Verify(submitted string, rec Record, maxAttempts int) Result {
	if rec.Verified {
		return Result{Valid: false, Reason: ReasonAlreadyVerified}
	}
	if maxAttempts > 0 && rec.Attempts > maxAttempts {
		return Result{Valid: false, Reason: ReasonMaxAttempts}
	}
	if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
		return Result{Valid: false, Reason: ReasonExpired}
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(rec.Code)) != 1 {
		return Result{Valid: false, Reason: ReasonMismatch}
	}
	return Result{Valid: true}
}
