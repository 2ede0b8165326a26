package order

import (
	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/prescription"
)

// Expand maps a prescription to candidate draft lines, one per prescription
// item, each keeping its originating prescription item id. Name and price
// are resolved through the catalog snapshot; a medication missing from the
// snapshot leaves those fields zero-valued rather than failing the whole
// expansion.
func Expand(p prescription.Prescription, cache *catalog.Cache) []Item {
	items := make([]Item, 0, len(p.Items))
	for _, pi := range p.Items {
		it := Item{
			MedicationID:       pi.MedicationID,
			Quantity:           pi.Quantity,
			Dosage:             pi.Dosage,
			Frequency:          pi.Frequency,
			Duration:           pi.Duration,
			Instructions:       pi.Instructions,
			PrescriptionItemID: pi.ID,
		}
		if med, ok := cache.FindMedication(pi.MedicationID); ok {
			it.MedicationName = med.Name
			it.UnitPrice = med.UnitPrice
		}
		items = append(items, it)
	}
	return items
}
