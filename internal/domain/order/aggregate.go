package order

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the archive lifecycle of a submitted order.
type Status string

const (
	StatusNew       Status = "new"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Aggregate is the submitted-order aggregate root, rebuilt from its events.
type Aggregate struct {
	id             string
	version        int
	status         Status
	remoteOrderID  int64
	orderNumber    string
	patientID      int64
	prescriptionID *int64
	itemCount      int
	idempotencyKey string
	submittedAt    time.Time
	updatedAt      time.Time
	changes        []*Event
}

// NewAggregate creates an empty aggregate.
func NewAggregate(id string) *Aggregate {
	return &Aggregate{
		id:      id,
		status:  StatusNew,
		changes: make([]*Event, 0),
	}
}

// ID returns the aggregate id.
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version.
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status.
func (a *Aggregate) Status() Status { return a.status }

// PatientID returns the submitting patient.
func (a *Aggregate) PatientID() int64 { return a.patientID }

// IdempotencyKey returns the submission key.
func (a *Aggregate) IdempotencyKey() string { return a.idempotencyKey }

// Changes returns uncommitted events.
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges drops uncommitted events after persistence.
func (a *Aggregate) ClearChanges() { a.changes = a.changes[:0] }

// Submit records the accepted submission.
func (a *Aggregate) Submit(data *OrderSubmittedData) error {
	if a.status != StatusNew {
		return errors.New("order already submitted")
	}

	event, err := NewEvent(a.id, EventOrderSubmitted, data)
	if err != nil {
		return err
	}
	event.PatientID = data.PatientID

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// Confirm records downstream fulfillment confirmation.
func (a *Aggregate) Confirm(confirmedBy string) error {
	if a.status != StatusSubmitted {
		return errors.New("order not awaiting confirmation")
	}

	data := &OrderConfirmedData{
		SubmissionID: a.id,
		ConfirmedBy:  confirmedBy,
		ConfirmedAt:  time.Now().UTC(),
	}
	event, err := NewEvent(a.id, EventOrderConfirmed, data)
	if err != nil {
		return err
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// Reject records a downstream rejection.
func (a *Aggregate) Reject(reason string) error {
	if a.status != StatusSubmitted {
		return errors.New("order not awaiting confirmation")
	}

	data := &OrderRejectedData{
		SubmissionID: a.id,
		Reason:       reason,
		RejectedAt:   time.Now().UTC(),
	}
	event, err := NewEvent(a.id, EventOrderRejected, data)
	if err != nil {
		return err
	}

	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// LoadFromHistory rebuilds state from stored events.
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}

func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp

	switch event.EventType {
	case EventOrderSubmitted:
		var data OrderSubmittedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusSubmitted
		a.remoteOrderID = data.RemoteOrderID
		a.orderNumber = data.OrderNumber
		a.patientID = data.PatientID
		a.prescriptionID = data.PrescriptionID
		a.itemCount = data.ItemCount
		a.idempotencyKey = data.IdempotencyKey
		a.submittedAt = data.SubmittedAt
	case EventOrderConfirmed:
		a.status = StatusConfirmed
	case EventOrderRejected:
		a.status = StatusRejected
	}
}
