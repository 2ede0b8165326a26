package idempotency

import "testing"

func TestSubmissionKeyDeterministic(t *testing.T) {
	lines := []string{"1:2", "2:10"}

	a := SubmissionKey(7, 42, lines)
	b := SubmissionKey(7, 42, []string{"1:2", "2:10"})
	if a != b {
		t.Error("same submission must produce the same key")
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestSubmissionKeyDiscriminates(t *testing.T) {
	base := SubmissionKey(7, 42, []string{"1:2"})

	if SubmissionKey(8, 42, []string{"1:2"}) == base {
		t.Error("patient id must affect the key")
	}
	if SubmissionKey(7, 0, []string{"1:2"}) == base {
		t.Error("prescription id must affect the key")
	}
	if SubmissionKey(7, 42, []string{"1:3"}) == base {
		t.Error("line quantities must affect the key")
	}
}
