// Package prescription provides prescription records and eligibility resolution.
package prescription

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Prescription is a clinician-authorized medication set. Immutable from the
// composition engine's perspective; only undispensed prescriptions may seed
// an order draft.
type Prescription struct {
	ID                 int64     `json:"id"`
	PrescriptionNumber string    `json:"prescriptionNumber"`
	PrescriptionDate   time.Time `json:"prescriptionDate"`
	Dispensed          bool      `json:"dispensed"`
	Items              []Item    `json:"items"`
}

// Item is one authorized medication line within a prescription. The item id
// travels onto derived order lines to prevent double-dispensing the same
// line across multiple orders.
type Item struct {
	ID           int64  `json:"id"`
	MedicationID int64  `json:"medicationId"`
	Quantity     int64  `json:"quantity"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

// Store is the prescription collaborator.
type Store interface {
	ListUndispensedByPatient(ctx context.Context, patientID int64) ([]Prescription, error)
}

// Resolver lists the prescriptions a draft may be seeded from.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// ListEligible returns the patient's undispensed prescriptions in the order
// the store returned them. An empty result is valid and distinct from a
// fetch error. Dispensed rows are filtered defensively even though the store
// contract already excludes them.
func (r *Resolver) ListEligible(ctx context.Context, patientID int64) ([]Prescription, error) {
	rows, err := r.store.ListUndispensedByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions for patient %d: %w", patientID, err)
	}

	eligible := make([]Prescription, 0, len(rows))
	for _, p := range rows {
		if p.Dispensed {
			r.logger.Warn("store returned dispensed prescription, skipping",
				zap.Int64("prescription_id", p.ID),
				zap.Int64("patient_id", patientID))
			continue
		}
		eligible = append(eligible, p)
	}

	return eligible, nil
}
