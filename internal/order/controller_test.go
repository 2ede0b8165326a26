package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carelane/go-moc/internal/prescription"
)

type fakeLister struct {
	byPatient map[int64][]prescription.Prescription
	err       error
	// gate, when set, blocks fetches for gatePatient until released. Lets
	// tests overlap an in-flight fetch with a newer patient selection.
	gate        chan struct{}
	gatePatient int64
}

func (f *fakeLister) ListEligible(ctx context.Context, patientID int64) ([]prescription.Prescription, error) {
	if f.gate != nil && patientID == f.gatePatient {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byPatient[patientID], nil
}

type fakeSubmitter struct {
	err  error
	last *SubmissionPayload
}

func (f *fakeSubmitter) CreateOrder(ctx context.Context, payload *SubmissionPayload) (*Confirmation, error) {
	f.last = payload
	if f.err != nil {
		return nil, f.err
	}
	return &Confirmation{OrderID: 900, OrderNumber: "ORD-900", Status: "pending"}, nil
}

func rx42() prescription.Prescription {
	return prescription.Prescription{
		ID:                 42,
		PrescriptionNumber: "RX-42",
		PrescriptionDate:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Items: []prescription.Item{
			{ID: 11, MedicationID: 1, Quantity: 2, Dosage: "500mg", Duration: "7 days"},
			{ID: 12, MedicationID: 3, Quantity: 1, Duration: "as needed"},
		},
	}
}

func newTestController(lister PrescriptionLister, submit Submitter) *Controller {
	return NewController(testCache(), lister, submit, nil)
}

func TestSelectPatientLoadsPrescriptions(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{
		1: {rx42()},
	}}
	c := newTestController(lister, &fakeSubmitter{})

	if err := c.SelectPatient(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Patient == nil || s.Patient.ID != 1 {
		t.Fatal("patient not selected")
	}
	if len(s.Prescriptions) != 1 || s.Prescriptions[0].ID != 42 {
		t.Fatalf("prescriptions = %+v", s.Prescriptions)
	}
	if len(s.Items) != 0 {
		t.Error("new patient context must start with an empty ledger")
	}
}

func TestSelectPatientUnknown(t *testing.T) {
	c := newTestController(&fakeLister{}, &fakeSubmitter{})

	err := c.SelectPatient(context.Background(), 999)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSelectPatientResetsDraft(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{
		1: {rx42()},
		2: nil,
	}}
	c := newTestController(lister, &fakeSubmitter{})

	ctx := context.Background()
	if err := c.SelectPatient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectPrescription(42); err != nil {
		t.Fatal(err)
	}
	if got := c.Snapshot(); len(got.Items) != 2 {
		t.Fatalf("expected expanded items, got %d", len(got.Items))
	}

	if err := c.SelectPatient(ctx, 2); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Draft.PrescriptionID != 0 {
		t.Error("prescription selection must not survive a patient switch")
	}
	if len(s.Items) != 0 {
		t.Errorf("ledger must be cleared on patient switch, got %d items", len(s.Items))
	}
}

func TestStalePrescriptionFetchDiscarded(t *testing.T) {
	lister := &fakeLister{
		byPatient:   map[int64][]prescription.Prescription{1: {rx42()}},
		gate:        make(chan struct{}),
		gatePatient: 1,
	}
	c := newTestController(lister, &fakeSubmitter{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SelectPatient(ctx, 1) }()

	// Supersede patient 1 while its fetch is still blocked.
	for c.Snapshot().Draft.PatientID != 1 {
		time.Sleep(time.Millisecond)
	}
	if err := c.SelectPatient(ctx, 2); err != nil {
		t.Fatal(err)
	}

	close(lister.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Draft.PatientID != 2 {
		t.Fatalf("patient = %d, want 2", s.Draft.PatientID)
	}
	if len(s.Prescriptions) != 0 {
		t.Errorf("stale fetch for patient 1 must be discarded, got %+v", s.Prescriptions)
	}
}

func TestPrescriptionFetchFailureIsAdvisory(t *testing.T) {
	lister := &fakeLister{err: errors.New("upstream 503")}
	c := newTestController(lister, &fakeSubmitter{})

	if err := c.SelectPatient(context.Background(), 1); err != nil {
		t.Fatalf("fetch failure must not fail patient selection: %v", err)
	}

	s := c.Snapshot()
	if s.Advisory == "" {
		t.Error("expected advisory message")
	}
	if len(s.Prescriptions) != 0 {
		t.Error("expected empty prescription list")
	}

	// The draft stays usable for manual entry.
	if err := c.AddItem(AddItemRequest{MedicationID: 2, Quantity: 1}); err != nil {
		t.Fatalf("manual entry must still work: %v", err)
	}
}

func TestSelectPrescriptionExpandsItems(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{1: {rx42()}}}
	c := newTestController(lister, &fakeSubmitter{})
	ctx := context.Background()

	if err := c.SelectPatient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectPrescription(42); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if len(s.Items) != len(rx42().Items) {
		t.Fatalf("expected one line per prescription item, got %d", len(s.Items))
	}
	if s.Items[0].PrescriptionItemID != 11 {
		t.Errorf("line 0 prescription item id = %d, want 11", s.Items[0].PrescriptionItemID)
	}
	if s.Items[0].MedicationName != "Amoxicillin 500mg" {
		t.Errorf("line 0 name = %q", s.Items[0].MedicationName)
	}
}

func TestSelectPrescriptionUnknown(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{1: {rx42()}}}
	c := newTestController(lister, &fakeSubmitter{})

	if err := c.SelectPatient(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	err := c.SelectPrescription(77)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSelectPrescriptionZeroMeansWalkIn(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{1: {rx42()}}}
	c := newTestController(lister, &fakeSubmitter{})
	ctx := context.Background()

	if err := c.SelectPatient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectPrescription(42); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectPrescription(0); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Draft.PatientID != 1 {
		t.Error("walk-in switch must keep the patient")
	}
	if s.Draft.PrescriptionID != 0 || len(s.Items) != 0 {
		t.Error("walk-in switch must clear prescription and ledger")
	}
}

func TestExpandMissingMedicationDegrades(t *testing.T) {
	p := rx42()
	p.Items = append(p.Items, prescription.Item{ID: 13, MedicationID: 999, Quantity: 1})

	items := Expand(p, testCache())
	if len(items) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(items))
	}
	last := items[2]
	if last.MedicationName != "" || !last.UnitPrice.IsZero() {
		t.Error("unresolvable medication must leave name and price zero-valued")
	}
	if last.PrescriptionItemID != 13 {
		t.Errorf("prescription item id lost: %d", last.PrescriptionItemID)
	}
}

func TestSubmitValidation(t *testing.T) {
	c := newTestController(&fakeLister{}, &fakeSubmitter{})

	_, err := c.Submit(context.Background())

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Reasons) != 2 {
		t.Errorf("expected both missing patient and empty items reported, got %v", ve.Reasons)
	}
}

func TestSubmitRemoteFailureKeepsDraft(t *testing.T) {
	submit := &fakeSubmitter{err: errors.New("hospital system down")}
	lister := &fakeLister{}
	c := newTestController(lister, submit)
	ctx := context.Background()

	if err := c.SelectPatient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.AddItem(AddItemRequest{MedicationID: 2, Quantity: 2}); err != nil {
		t.Fatal(err)
	}

	_, err := c.Submit(ctx)
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}

	s := c.Snapshot()
	if s.Draft.PatientID != 1 || len(s.Items) != 1 {
		t.Error("failed submission must preserve the draft for retry")
	}
}

func TestSubmitSuccessResetsDraft(t *testing.T) {
	submit := &fakeSubmitter{}
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{1: {rx42()}}}
	c := newTestController(lister, submit)
	ctx := context.Background()

	if err := c.SelectPatient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectPrescription(42); err != nil {
		t.Fatal(err)
	}
	c.SetDiscount("2.50")
	c.SetDetails("12 Harbor Rd", "555-0142", "leave at desk")

	res, err := c.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmation.OrderNumber != "ORD-900" {
		t.Errorf("confirmation = %+v", res.Confirmation)
	}
	if res.Payload.PrescriptionID == nil || *res.Payload.PrescriptionID != 42 {
		t.Error("payload must carry the prescription id")
	}
	if submit.last.DeliveryAddress != "12 Harbor Rd" {
		t.Errorf("delivery address = %q", submit.last.DeliveryAddress)
	}

	s := c.Snapshot()
	if s.Draft.PatientID != 0 || len(s.Items) != 0 {
		t.Error("accepted submission must reset the draft")
	}
}

func TestPresetPrescriptionAutoSelects(t *testing.T) {
	lister := &fakeLister{byPatient: map[int64][]prescription.Prescription{1: {rx42()}}}
	c := newTestController(lister, &fakeSubmitter{})

	c.PresetPrescription(42)
	if err := c.SelectPatient(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Draft.PrescriptionID != 42 {
		t.Errorf("preset prescription not auto-selected, got %d", s.Draft.PrescriptionID)
	}
	if len(s.Items) != 2 {
		t.Errorf("expected expanded items, got %d", len(s.Items))
	}
}
