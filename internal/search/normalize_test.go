package search

import "testing"

func TestNormalize_TrimsCollapsesAndUppercases(t *testing.T) {
	got := Normalize("  vnm   stock  ")
	if got != "VNM STOCK" {
		t.Fatalf("expected %q, got %q", "VNM STOCK", got)
	}
}

func TestNormalize_EmptyStringStaysEmpty(t *testing.T) {
	if got := Normalize("   "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
