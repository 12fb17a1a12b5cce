package normalize

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMalformedTransaction marks a record that is missing fields the
	// decoder needs. The record is skipped; detector state is untouched.
	ErrMalformedTransaction = errors.New("malformed transaction")
	// ErrFailedTransaction marks a transaction that errored on chain.
	ErrFailedTransaction = errors.New("failed transaction")
)

// Decode failure reasons, used as metric labels.
const (
	ReasonNilTransaction = "nil_transaction"
	ReasonMissingMeta    = "missing_meta"
	ReasonMissingMessage = "missing_message"
	ReasonBadAmount      = "bad_amount"
	ReasonBadAddress     = "bad_address"
	ReasonFailed         = "failed"
)

// DecodeError describes why one transaction could not be decoded.
type DecodeError struct {
	Signature string
	Reason    string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s: %v", e.Signature, e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(sig, reason string, detail error) *DecodeError {
	err := ErrMalformedTransaction
	if detail != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedTransaction, detail)
	}
	return &DecodeError{Signature: sig, Reason: reason, Err: err}
}
