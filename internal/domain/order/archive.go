package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/carelane/go-moc/internal/infrastructure/postgres"
	"github.com/carelane/go-moc/internal/infrastructure/redpanda"
	draft "github.com/carelane/go-moc/internal/order"
	"github.com/carelane/go-moc/pkg/idempotency"
)

// Archiver records accepted submissions as order events and, atomically,
// queues them on the outbox for pipeline publication.
type Archiver struct {
	repo   *Repository
	logger *zap.Logger
}

// NewArchiver creates an archiver over the repository.
func NewArchiver(repo *Repository, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, logger: logger}
}

// ArchiveSubmission persists the submission and its outbox entry in one
// transaction, returning the archive id.
func (a *Archiver) ArchiveSubmission(ctx context.Context, res *draft.SubmissionResult) (string, error) {
	id := uuid.New().String()

	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	var prescriptionID int64
	if res.Payload.PrescriptionID != nil {
		prescriptionID = *res.Payload.PrescriptionID
	}
	lines := make([]string, 0, len(res.Payload.Items))
	for _, it := range res.Payload.Items {
		lines = append(lines, fmt.Sprintf("%d:%d", it.MedicationID, it.Quantity))
	}
	key := idempotency.SubmissionKey(res.Payload.PatientID, prescriptionID, lines)

	data := &OrderSubmittedData{
		SubmissionID:   id,
		RemoteOrderID:  res.Confirmation.OrderID,
		OrderNumber:    res.Confirmation.OrderNumber,
		PatientID:      res.Payload.PatientID,
		PrescriptionID: res.Payload.PrescriptionID,
		ItemCount:      len(res.Payload.Items),
		DiscountAmount: res.Payload.DiscountAmount,
		Payload:        payloadJSON,
		IdempotencyKey: key,
		SubmittedAt:    time.Now().UTC(),
	}

	agg := NewAggregate(id)
	if err := agg.Submit(data); err != nil {
		return "", err
	}

	eventPayload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	err = a.repo.Save(ctx, agg, func(ctx context.Context, tx pgx.Tx) error {
		return postgres.WriteEntry(ctx, tx, &postgres.OutboxEntry{
			AggregateID:   id,
			AggregateType: "Order",
			EventType:     string(EventOrderSubmitted),
			Payload:       eventPayload,
			Topic:         redpanda.TopicOrdersSubmitted,
			Key:           key,
		})
	})
	if err != nil {
		return "", err
	}

	a.logger.Info("submission archived",
		zap.String("submission_id", id),
		zap.Int64("remote_order_id", res.Confirmation.OrderID))
	return id, nil
}
