package services

import (
	"errors"
	"fmt"
)

var (
	ErrInstallationNotFound = errors.New("installation not found")
	ErrInvalidInstallation  = errors.New("installation has neither an enterprise nor a team id")
	ErrInvalidQuery         = errors.New("installation query has neither an enterprise nor a team id")
	ErrNameFetchFailed      = errors.New("display name lookup failed")
	ErrQuotaExceeded        = errors.New("weekly token allowance exceeded")
	ErrStoreWriteFailed     = errors.New("store write failed")
)

// PartialWriteError reports a ledger commit that stopped after some chunks were stored.
// Committed entries stay in the ledger.
type PartialWriteError struct {
	Committed int
	Requested int
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("ledger write stopped after %d of %d entries: %v", e.Committed, e.Requested, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrStoreWriteFailed, e.Err}
}
