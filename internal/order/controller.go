package order

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/prescription"
)

// PrescriptionLister resolves the eligible prescriptions for a patient.
// Implemented by prescription.Resolver.
type PrescriptionLister interface {
	ListEligible(ctx context.Context, patientID int64) ([]prescription.Prescription, error)
}

// Submitter sends a finished payload to the order submission endpoint.
type Submitter interface {
	CreateOrder(ctx context.Context, payload *SubmissionPayload) (*Confirmation, error)
}

// Confirmation is the remote system's acknowledgement of a created order.
type Confirmation struct {
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

// SubmissionResult pairs the confirmation with the payload that produced it,
// so callers can archive exactly what was sent.
type SubmissionResult struct {
	Confirmation *Confirmation
	Payload      *SubmissionPayload
}

// Snapshot is the read view the presentation layer renders from.
type Snapshot struct {
	Patient       *catalog.Patient            `json:"patient,omitempty"`
	Draft         Draft                       `json:"draft"`
	Prescriptions []prescription.Prescription `json:"prescriptions"`
	Items         []Item                      `json:"items"`
	Totals        Totals                      `json:"totals"`
	Advisory      string                      `json:"advisory,omitempty"`
}

// Controller owns one draft session. All mutations go through it; the mutex
// gives the draft a single writer while still letting a later patient
// selection supersede the in-flight prescription fetch of an earlier one.
type Controller struct {
	mu     sync.Mutex
	cache  *catalog.Cache
	lister PrescriptionLister
	submit Submitter
	logger *zap.Logger

	draft         Draft
	ledger        Ledger
	prescriptions []prescription.Prescription
	advisory      string

	// presetPrescriptionID is auto-selected once if the preset prescription
	// shows up in the fetched eligible list (deep link from the prescription
	// screen). Consumed on first match.
	presetPrescriptionID int64
}

// NewController creates a controller for a fresh, empty draft over the given
// catalog snapshot.
func NewController(cache *catalog.Cache, lister PrescriptionLister, submit Submitter, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cache:  cache,
		lister: lister,
		submit: submit,
		logger: logger,
	}
}

// PresetPrescription arms one-shot auto-selection of the given prescription
// after the next patient selection resolves it as eligible.
func (c *Controller) PresetPrescription(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presetPrescriptionID = id
}

// SelectPatient begins a new draft context for the patient: prescription
// selection and all ledger lines are cleared, then the eligible prescription
// list is fetched. The fetch is tagged with the patient id; if the selected
// patient changed while it was in flight, the resolved data is discarded
// rather than applied. A prescription-list failure is advisory: the draft
// proceeds with an empty list.
func (c *Controller) SelectPatient(ctx context.Context, patientID int64) error {
	c.mu.Lock()
	if _, ok := c.cache.FindPatient(patientID); !ok {
		c.mu.Unlock()
		return newValidation(ErrPatientNotFound)
	}

	c.draft.PatientID = patientID
	c.draft.PrescriptionID = 0
	c.ledger.Clear()
	c.prescriptions = nil
	c.advisory = ""
	c.mu.Unlock()

	// Fetch outside the lock so a later SelectPatient is never blocked
	// behind a slow collaborator.
	list, err := c.lister.ListEligible(ctx, patientID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.draft.PatientID != patientID {
		c.logger.Debug("discarding stale prescription list",
			zap.Int64("fetched_for", patientID),
			zap.Int64("current_patient", c.draft.PatientID))
		return nil
	}

	if err != nil {
		fe := &FetchError{Resource: "prescriptions", Advisory: true, Err: err}
		c.advisory = fe.Error()
		c.logger.Warn("prescription list unavailable, continuing with empty list",
			zap.Int64("patient_id", patientID),
			zap.Error(err))
		return nil
	}

	c.prescriptions = list

	if c.presetPrescriptionID != 0 {
		for _, p := range list {
			if p.ID == c.presetPrescriptionID {
				c.applyPrescription(p)
				break
			}
		}
		c.presetPrescriptionID = 0
	}
	return nil
}

// SelectPrescription switches the draft to the given eligible prescription,
// replacing the ledger with its expansion. A zero id means walk-in: the
// ledger is cleared and the patient selection is kept.
func (c *Controller) SelectPrescription(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == 0 {
		c.draft.PrescriptionID = 0
		c.ledger.Clear()
		return nil
	}

	for _, p := range c.prescriptions {
		if p.ID == id {
			c.applyPrescription(p)
			return nil
		}
	}
	return newValidation(ErrPrescriptionNotFound)
}

// applyPrescription expands p into the ledger. Caller holds the lock.
func (c *Controller) applyPrescription(p prescription.Prescription) {
	c.draft.PrescriptionID = p.ID
	c.ledger.ReplaceFromPrescription(Expand(p, c.cache))
}

// AddItem appends a manually entered line through the ledger's stock check.
// On rejection nothing is mutated and the error describes the cause.
func (c *Controller) AddItem(req AddItemRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.AddManual(req, c.cache)
}

// RemoveItem removes the line at index; stale indexes are ignored.
func (c *Controller) RemoveItem(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.Remove(index)
}

// SetDiscount stores the raw discount input; it is parsed on every pricing
// read, not here.
func (c *Controller) SetDiscount(input string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.DiscountAmount = input
}

// SetDetails updates the delivery fields of the draft.
func (c *Controller) SetDetails(deliveryAddress, contactPhone, notes string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.DeliveryAddress = deliveryAddress
	c.draft.ContactPhone = contactPhone
	c.draft.Notes = notes
}

// Snapshot returns the current draft state with freshly computed totals.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.ledger.Items()
	s := Snapshot{
		Draft:         c.draft,
		Prescriptions: append([]prescription.Prescription(nil), c.prescriptions...),
		Items:         items,
		Totals:        Price(items, c.draft.DiscountAmount),
		Advisory:      c.advisory,
	}
	if c.draft.PatientID != 0 {
		if p, ok := c.cache.FindPatient(c.draft.PatientID); ok {
			s.Patient = &p
		}
	}
	return s
}

// Submit validates the draft, builds the submission payload and sends it.
// Validation failures list every missing requirement and leave the draft
// untouched. A remote failure is returned verbatim as a SubmissionError with
// the draft preserved for retry; on success the draft is reset and ownership
// of the order passes to the remote system.
func (c *Controller) Submit(ctx context.Context) (*SubmissionResult, error) {
	c.mu.Lock()

	var causes []error
	if c.draft.PatientID == 0 {
		causes = append(causes, ErrNoPatient)
	}
	if c.ledger.Len() == 0 {
		causes = append(causes, ErrEmptyItems)
	}
	if len(causes) > 0 {
		c.mu.Unlock()
		return nil, newValidation(causes...)
	}

	payload := buildPayload(c.draft, c.ledger.Items())
	c.mu.Unlock()

	conf, err := c.submit.CreateOrder(ctx, payload)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	c.mu.Lock()
	c.draft = Draft{}
	c.ledger.Clear()
	c.prescriptions = nil
	c.advisory = ""
	c.mu.Unlock()

	c.logger.Info("order submitted",
		zap.Int64("order_id", conf.OrderID),
		zap.Int64("patient_id", payload.PatientID),
		zap.Int("items", len(payload.Items)))

	return &SubmissionResult{Confirmation: conf, Payload: payload}, nil
}
