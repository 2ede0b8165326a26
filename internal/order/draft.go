// Package order implements the medicine order composition core: the draft
// aggregate, the line item ledger, pricing, and the draft controller.
package order

import (
	"github.com/shopspring/decimal"
)

// Item is one draft order line. MedicationName and UnitPrice are snapshots
// taken from the catalog cache when the line was added; they deliberately do
// not track later catalog changes (price-at-order-time semantics).
// PrescriptionItemID is zero for manually added lines.
type Item struct {
	MedicationID       int64           `json:"medicationId"`
	MedicationName     string          `json:"medicationName"`
	Quantity           int64           `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	Dosage             string          `json:"dosage"`
	Frequency          string          `json:"frequency"`
	Duration           string          `json:"duration"`
	Instructions       string          `json:"instructions"`
	PrescriptionItemID int64           `json:"prescriptionItemId,omitempty"`
}

// Draft is the in-progress order being assembled. It exists only for the
// lifetime of one editing session and is discarded on submission or
// cancellation. PatientID zero means no patient selected yet;
// PrescriptionID zero means walk-in.
type Draft struct {
	PatientID       int64  `json:"patientId"`
	PrescriptionID  int64  `json:"prescriptionId,omitempty"`
	DeliveryAddress string `json:"deliveryAddress"`
	ContactPhone    string `json:"contactPhone"`
	Notes           string `json:"notes"`
	DiscountAmount  string `json:"discountAmount"`
}
