package fingerprint

import "testing"

func TestSumStableAndDistinct(t *testing.T) {
	a := Sum([]byte("content"))
	b := Sum([]byte("content"))
	c := Sum([]byte("different"))

	if a != b {
		t.Error("identical bytes must produce identical fingerprints")
	}
	if a == c {
		t.Error("different bytes must produce different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}
