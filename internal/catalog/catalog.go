// Package catalog holds the per-session snapshot of patients and medications.
package catalog

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Patient is an identity record from the patient directory. Read-only.
type Patient struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Medication is a catalog record. UnitPrice and StockQuantity are the source
// of truth at the moment an item is added to a draft; the snapshot is not
// refreshed for the lifetime of the editing session.
type Medication struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	StockQuantity int64           `json:"stockQuantity"`
}

// PatientSource lists patients from the patient directory.
type PatientSource interface {
	ListPatients(ctx context.Context) ([]Patient, error)
}

// MedicationSource lists medications from the medication catalog.
type MedicationSource interface {
	ListMedications(ctx context.Context) ([]Medication, error)
}

// Cache is the immutable snapshot for one editing session.
type Cache struct {
	patients    map[int64]Patient
	medications map[int64]Medication
}

// Load fetches both collections concurrently. Either fetch failing fails the
// whole load; a draft session is never started on a partial catalog.
func Load(ctx context.Context, patients PatientSource, medications MedicationSource, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		wg      sync.WaitGroup
		pts     []Patient
		meds    []Medication
		ptsErr  error
		medsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pts, ptsErr = patients.ListPatients(ctx)
	}()
	go func() {
		defer wg.Done()
		meds, medsErr = medications.ListMedications(ctx)
	}()
	wg.Wait()

	if ptsErr != nil {
		return nil, &LoadError{Resource: "patients", Err: ptsErr}
	}
	if medsErr != nil {
		return nil, &LoadError{Resource: "medications", Err: medsErr}
	}

	c := &Cache{
		patients:    make(map[int64]Patient, len(pts)),
		medications: make(map[int64]Medication, len(meds)),
	}
	for _, p := range pts {
		c.patients[p.ID] = p
	}
	for _, m := range meds {
		c.medications[m.ID] = m
	}

	logger.Info("catalog loaded",
		zap.Int("patients", len(pts)),
		zap.Int("medications", len(meds)))

	return c, nil
}

// NewCache builds a cache directly from slices. Used by tests and seeders.
func NewCache(patients []Patient, medications []Medication) *Cache {
	c := &Cache{
		patients:    make(map[int64]Patient, len(patients)),
		medications: make(map[int64]Medication, len(medications)),
	}
	for _, p := range patients {
		c.patients[p.ID] = p
	}
	for _, m := range medications {
		c.medications[m.ID] = m
	}
	return c
}

// FindPatient looks up a patient by id.
func (c *Cache) FindPatient(id int64) (Patient, bool) {
	p, ok := c.patients[id]
	return p, ok
}

// FindMedication looks up a medication by id.
func (c *Cache) FindMedication(id int64) (Medication, bool) {
	m, ok := c.medications[id]
	return m, ok
}

// Patients returns all patients in the snapshot.
func (c *Cache) Patients() []Patient {
	out := make([]Patient, 0, len(c.patients))
	for _, p := range c.patients {
		out = append(out, p)
	}
	return out
}

// Medications returns all medications in the snapshot.
func (c *Cache) Medications() []Medication {
	out := make([]Medication, 0, len(c.medications))
	for _, m := range c.medications {
		out = append(out, m)
	}
	return out
}

// LoadError reports which collaborator fetch failed during catalog load.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string {
	return "catalog unavailable: " + e.Resource + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }
