// Package order implements the submitted-order archive aggregate and its
// domain events. Drafts live in memory; only accepted submissions and their
// confirmation lifecycle are event-sourced here.
package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event.
type EventType string

const (
	EventOrderSubmitted EventType = "OrderSubmitted"
	EventOrderConfirmed EventType = "OrderConfirmed"
	EventOrderRejected  EventType = "OrderRejected"
)

// Event is one archived domain event.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientID     int64           `json:"patient_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates an event with marshaled data.
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Order",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// OrderSubmittedData captures what was sent to the hospital system, exactly
// as submitted.
type OrderSubmittedData struct {
	SubmissionID   string          `json:"submission_id"`
	RemoteOrderID  int64           `json:"remote_order_id"`
	OrderNumber    string          `json:"order_number"`
	PatientID      int64           `json:"patient_id"`
	PrescriptionID *int64          `json:"prescription_id"`
	ItemCount      int             `json:"item_count"`
	DiscountAmount float64         `json:"discount_amount"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

// OrderConfirmedData records downstream fulfillment confirmation.
type OrderConfirmedData struct {
	SubmissionID string    `json:"submission_id"`
	ConfirmedBy  string    `json:"confirmed_by"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}

// OrderRejectedData records a downstream rejection.
type OrderRejectedData struct {
	SubmissionID string    `json:"submission_id"`
	Reason       string    `json:"reason"`
	RejectedAt   time.Time `json:"rejected_at"`
}
