package order

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildPayloadWalkIn(t *testing.T) {
	draft := Draft{
		PatientID:       7,
		DeliveryAddress: "12 Harbor Rd",
		ContactPhone:    "555-0142",
		DiscountAmount:  "not-a-number",
	}
	items := []Item{
		{MedicationID: 2, Quantity: 3, Dosage: "1 tablet", Duration: "7 days"},
	}

	p := buildPayload(draft, items)

	if p.PrescriptionID != nil {
		t.Errorf("walk-in draft must carry a nil prescription id, got %d", *p.PrescriptionID)
	}
	if p.DiscountAmount != 0 {
		t.Errorf("unparsable discount must default to 0, got %v", p.DiscountAmount)
	}
	if p.Items[0].PrescriptionItemID != nil {
		t.Error("manual item must carry a nil prescription item id")
	}
	if p.Items[0].Duration == nil || *p.Items[0].Duration != 7 {
		t.Errorf("duration %q must coerce to 7", items[0].Duration)
	}
}

func TestBuildPayloadPrescriptionBacked(t *testing.T) {
	draft := Draft{PatientID: 7, PrescriptionID: 42, DiscountAmount: "2.50"}
	items := []Item{
		{MedicationID: 1, Quantity: 1, PrescriptionItemID: 11, Duration: "14"},
		{MedicationID: 3, Quantity: 2, PrescriptionItemID: 12, Duration: "as needed"},
	}

	p := buildPayload(draft, items)

	if p.PrescriptionID == nil || *p.PrescriptionID != 42 {
		t.Fatal("prescription id must be carried")
	}
	if p.DiscountAmount != 2.5 {
		t.Errorf("discount = %v, want 2.5", p.DiscountAmount)
	}
	if p.Items[0].PrescriptionItemID == nil || *p.Items[0].PrescriptionItemID != 11 {
		t.Error("prescription item id must be carried on line 0")
	}
	if p.Items[1].Duration != nil {
		t.Errorf("non-numeric duration must be null, got %d", *p.Items[1].Duration)
	}
}

func TestPayloadExplicitNulls(t *testing.T) {
	p := buildPayload(Draft{PatientID: 7}, []Item{{MedicationID: 2, Quantity: 1}})

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)

	// Absent references serialize as explicit nulls, never omitted keys.
	if !strings.Contains(s, `"prescriptionId":null`) {
		t.Errorf("missing explicit prescriptionId null: %s", s)
	}
	if !strings.Contains(s, `"prescriptionItemId":null`) {
		t.Errorf("missing explicit prescriptionItemId null: %s", s)
	}
	if !strings.Contains(s, `"duration":null`) {
		t.Errorf("missing explicit duration null: %s", s)
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want *int64
	}{
		{"7", i64(7)},
		{"7 days", i64(7)},
		{"  10  ", i64(10)},
		{"+3", i64(3)},
		{"-2", i64(-2)},
		{"as needed", nil},
		{"", nil},
		{"days 7", nil},
	}
	for _, c := range cases {
		got := parseDuration(c.in)
		switch {
		case got == nil && c.want != nil:
			t.Errorf("parseDuration(%q) = nil, want %d", c.in, *c.want)
		case got != nil && c.want == nil:
			t.Errorf("parseDuration(%q) = %d, want nil", c.in, *got)
		case got != nil && c.want != nil && *got != *c.want:
			t.Errorf("parseDuration(%q) = %d, want %d", c.in, *got, *c.want)
		}
	}
}

func i64(n int64) *int64 { return &n }
