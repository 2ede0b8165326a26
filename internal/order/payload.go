package order

import (
	"strings"
)

// SubmissionPayload is the exact wire shape the order submission endpoint
// expects. PrescriptionID and per-item PrescriptionItemID are explicit nulls
// when absent, never omitted.
type SubmissionPayload struct {
	PatientID       int64         `json:"patientId"`
	PrescriptionID  *int64        `json:"prescriptionId"`
	DeliveryAddress string        `json:"deliveryAddress"`
	ContactPhone    string        `json:"contactPhone"`
	Notes           string        `json:"notes"`
	DiscountAmount  float64       `json:"discountAmount"`
	Items           []PayloadItem `json:"items"`
}

// PayloadItem is one submitted order line.
type PayloadItem struct {
	MedicationID       int64  `json:"medicationId"`
	PrescriptionItemID *int64 `json:"prescriptionItemId"`
	Quantity           int64  `json:"quantity"`
	Dosage             string `json:"dosage"`
	Frequency          string `json:"frequency"`
	Duration           *int64 `json:"duration"`
	Instructions       string `json:"instructions"`
}

// buildPayload assembles the submission payload from a validated draft.
// Discount defaults to zero when unparsable; duration is coerced to an
// integer or null.
func buildPayload(draft Draft, items []Item) *SubmissionPayload {
	p := &SubmissionPayload{
		PatientID:       draft.PatientID,
		DeliveryAddress: draft.DeliveryAddress,
		ContactPhone:    draft.ContactPhone,
		Notes:           draft.Notes,
		DiscountAmount:  ParseDiscount(draft.DiscountAmount).InexactFloat64(),
		Items:           make([]PayloadItem, 0, len(items)),
	}
	if draft.PrescriptionID != 0 {
		id := draft.PrescriptionID
		p.PrescriptionID = &id
	}

	for _, it := range items {
		pi := PayloadItem{
			MedicationID: it.MedicationID,
			Quantity:     it.Quantity,
			Dosage:       it.Dosage,
			Frequency:    it.Frequency,
			Duration:     parseDuration(it.Duration),
			Instructions: it.Instructions,
		}
		if it.PrescriptionItemID != 0 {
			id := it.PrescriptionItemID
			pi.PrescriptionItemID = &id
		}
		p.Items = append(p.Items, pi)
	}
	return p
}

// parseDuration extracts the leading integer from free-form duration text
// ("7", "7 days"); anything without leading digits is null.
func parseDuration(s string) *int64 {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	var n int64
	var digits int
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int64(r-'0')
		digits++
	}
	if digits == 0 {
		return nil
	}
	if neg {
		n = -n
	}
	return &n
}
