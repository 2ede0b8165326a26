package order

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel validation causes, surfaced inside ValidationError reasons and
// usable with errors.Is by handlers.
var (
	ErrNoPatient            = errors.New("patient is required")
	ErrEmptyItems           = errors.New("at least one item is required")
	ErrInvalidMedication    = errors.New("medication is required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrMedicationNotFound   = errors.New("medication not found in catalog")
	ErrPrescriptionNotFound = errors.New("prescription not eligible for this patient")
	ErrPatientNotFound      = errors.New("patient not found in catalog")
)

// ValidationError is a local, recoverable rejection. It carries every reason
// found so the caller can render them inline; nothing was mutated.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

func newValidation(causes ...error) *ValidationError {
	reasons := make([]string, 0, len(causes))
	for _, c := range causes {
		reasons = append(reasons, c.Error())
	}
	return &ValidationError{Reasons: reasons}
}

// StockError rejects a manual line whose quantity exceeds the stock recorded
// in the catalog snapshot at entry time. The item was not added.
type StockError struct {
	MedicationID int64
	Requested    int64
	Available    int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for medication %d: requested %d, available %d",
		e.MedicationID, e.Requested, e.Available)
}

// FetchError wraps a collaborator read failure. Advisory fetches (the
// prescription list) leave the draft usable; blocking ones (catalog load) do
// not.
type FetchError struct {
	Resource string
	Advisory bool
	Err      error
}

func (e *FetchError) Error() string {
	return "fetch " + e.Resource + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError wraps a remote rejection or transport failure on order
// creation. The cause is passed through verbatim; the draft is preserved for
// retry and no partial order is considered created.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "order submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }
