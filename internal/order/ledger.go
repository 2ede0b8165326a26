package order

import (
	"github.com/carelane/go-moc/internal/catalog"
)

// AddItemRequest is the manual-entry input for one draft line.
type AddItemRequest struct {
	MedicationID int64  `json:"medicationId"`
	Quantity     int64  `json:"quantity"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

// Ledger is the mutable set of draft lines. It is exclusively owned by one
// draft session; callers serialize access through the controller. Identical
// medications are kept as separate lines, never merged.
type Ledger struct {
	items []Item
}

// AddManual validates and appends a manually entered line. The medication
// must resolve in the catalog snapshot and the quantity must not exceed the
// snapshotted stock. On rejection the ledger is unchanged.
func (l *Ledger) AddManual(req AddItemRequest, cache *catalog.Cache) error {
	var causes []error
	if req.MedicationID == 0 {
		causes = append(causes, ErrInvalidMedication)
	}
	if req.Quantity <= 0 {
		causes = append(causes, ErrInvalidQuantity)
	}
	if len(causes) > 0 {
		return newValidation(causes...)
	}

	med, ok := cache.FindMedication(req.MedicationID)
	if !ok {
		return newValidation(ErrMedicationNotFound)
	}

	if req.Quantity > med.StockQuantity {
		return &StockError{
			MedicationID: med.ID,
			Requested:    req.Quantity,
			Available:    med.StockQuantity,
		}
	}

	l.items = append(l.items, Item{
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Quantity:       req.Quantity,
		UnitPrice:      med.UnitPrice,
		Dosage:         req.Dosage,
		Frequency:      req.Frequency,
		Duration:       req.Duration,
		Instructions:   req.Instructions,
	})
	return nil
}

// ReplaceFromPrescription swaps the ledger contents for a prescription
// expansion. Quantities authorized by a clinician are not stock-gated here;
// that policy intentionally differs from manual entry.
func (l *Ledger) ReplaceFromPrescription(items []Item) {
	l.items = append([]Item(nil), items...)
}

// Remove drops the line at index. Out-of-range indexes from stale UI
// references are a no-op.
func (l *Ledger) Remove(index int) {
	if index < 0 || index >= len(l.items) {
		return
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.items = nil
}

// Items returns a copy of the current lines.
func (l *Ledger) Items() []Item {
	return append([]Item(nil), l.items...)
}

// Len returns the number of lines.
func (l *Ledger) Len() int {
	return len(l.items)
}
