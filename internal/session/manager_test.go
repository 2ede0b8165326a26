package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/order"
	"github.com/carelane/go-moc/internal/prescription"
)

type stubCollaborators struct {
	patientsErr error
}

func (s *stubCollaborators) ListPatients(ctx context.Context) ([]catalog.Patient, error) {
	if s.patientsErr != nil {
		return nil, s.patientsErr
	}
	return []catalog.Patient{{ID: 1}}, nil
}

func (s *stubCollaborators) ListMedications(ctx context.Context) ([]catalog.Medication, error) {
	return []catalog.Medication{{ID: 1, StockQuantity: 10}}, nil
}

func (s *stubCollaborators) ListEligible(ctx context.Context, patientID int64) ([]prescription.Prescription, error) {
	return nil, nil
}

func (s *stubCollaborators) CreateOrder(ctx context.Context, payload *order.SubmissionPayload) (*order.Confirmation, error) {
	return &order.Confirmation{OrderID: 1}, nil
}

func newTestManager(stub *stubCollaborators, cfg Config) *Manager {
	return NewManager(stub, stub, stub, stub, cfg, nil)
}

func TestOpenGetClose(t *testing.T) {
	m := newTestManager(&stubCollaborators{}, DefaultConfig())
	defer m.Stop()

	s, err := m.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == "" || s.Controller == nil {
		t.Fatal("incomplete session")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Error("lookup returned a different session")
	}

	m.Close(s.ID)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Closing again is a no-op.
	m.Close(s.ID)
}

func TestOpenFailsOnPartialCatalog(t *testing.T) {
	m := newTestManager(&stubCollaborators{patientsErr: errors.New("down")}, DefaultConfig())
	defer m.Stop()

	_, err := m.Open(context.Background())

	var le *catalog.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if m.Count() != 0 {
		t.Error("failed open must not leave a session behind")
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	m := newTestManager(&stubCollaborators{}, Config{
		IdleTTL:       20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})
	defer m.Stop()

	s, err := m.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for m.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Count() != 0 {
		t.Fatal("idle session not expired")
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
