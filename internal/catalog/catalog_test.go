package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type fakePatients struct {
	rows []Patient
	err  error
}

func (f *fakePatients) ListPatients(ctx context.Context) ([]Patient, error) {
	return f.rows, f.err
}

type fakeMedications struct {
	rows []Medication
	err  error
}

func (f *fakeMedications) ListMedications(ctx context.Context) ([]Medication, error) {
	return f.rows, f.err
}

func TestLoadBuildsSnapshot(t *testing.T) {
	patients := &fakePatients{rows: []Patient{{ID: 1, FirstName: "Amina", LastName: "Osei"}}}
	meds := &fakeMedications{rows: []Medication{
		{ID: 2, Name: "Ibuprofen 200mg", UnitPrice: decimal.RequireFromString("1.50"), StockQuantity: 100},
	}}

	cache, err := Load(context.Background(), patients, meds, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.FindPatient(1); !ok {
		t.Error("patient 1 missing")
	}
	m, ok := cache.FindMedication(2)
	if !ok {
		t.Fatal("medication 2 missing")
	}
	if !m.UnitPrice.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("unit price = %s", m.UnitPrice)
	}
	if _, ok := cache.FindMedication(99); ok {
		t.Error("unexpected medication 99")
	}
}

func TestLoadIsAllOrNothing(t *testing.T) {
	cause := errors.New("timeout")

	_, err := Load(context.Background(),
		&fakePatients{err: cause},
		&fakeMedications{rows: []Medication{{ID: 1}}},
		nil)

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Resource != "patients" {
		t.Errorf("resource = %q, want patients", le.Resource)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestLoadMedicationFailure(t *testing.T) {
	_, err := Load(context.Background(),
		&fakePatients{rows: []Patient{{ID: 1}}},
		&fakeMedications{err: errors.New("503")},
		nil)

	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Resource != "medications" {
		t.Errorf("resource = %q, want medications", le.Resource)
	}
}

func TestLoadEmptyCollectionsAreValid(t *testing.T) {
	cache, err := Load(context.Background(), &fakePatients{}, &fakeMedications{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.Patients()) != 0 || len(cache.Medications()) != 0 {
		t.Error("expected empty snapshot")
	}
}
