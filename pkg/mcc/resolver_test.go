package mcc

import "testing"

// TestResolveKnownAllocations verifies that representative mobile country
// codes resolve to the expected ISO regions, including countries holding
// more than one allocation.
func TestResolveKnownAllocations(t *testing.T) {
	tests := []struct {
		mcc  int16
		want string
	}{
		{250, "RU"}, // Russia
		{255, "UA"}, // Ukraine
		{262, "DE"}, // Germany
		{234, "GB"}, // United Kingdom, first allocation
		{235, "GB"}, // United Kingdom, second allocation
		{310, "US"}, // United States
		{316, "US"}, // United States, last allocation
		{404, "IN"}, // India
		{440, "JP"}, // Japan
		{450, "KR"}, // South Korea
		{466, "TW"}, // Taiwan
		{525, "SG"}, // Singapore
		{620, "GH"}, // Ghana
		{736, "BO"}, // Bolivia
	}
	for _, tc := range tests {
		got, _ := Resolve(tc.mcc)
		if got != tc.want {
			t.Errorf("Resolve(%d) = %q, want %q", tc.mcc, got, tc.want)
		}
	}
}

// TestResolveOutsideGeographicRange ensures test networks and junk codes
// return an empty region so callers can treat them as unknown.
func TestResolveOutsideGeographicRange(t *testing.T) {
	for _, code := range []int16{0, 1, 199, 800, 901, 999} {
		if got, _ := Resolve(code); got != "" {
			t.Fatalf("Resolve(%d) = %q, want empty", code, got)
		}
	}
}

// TestResolveUnallocatedGap covers a hole inside the geographic range.
func TestResolveUnallocatedGap(t *testing.T) {
	if got, _ := Resolve(203); got != "" {
		t.Fatalf("Resolve(203) = %q, want empty", got)
	}
}

func TestNameFor(t *testing.T) {
	if name := NameFor("ua"); name != "Ukraine" {
		t.Fatalf("NameFor(ua) = %q, want Ukraine", name)
	}
	if name := NameFor(""); name != "" {
		t.Fatalf("NameFor(\"\") = %q, want empty", name)
	}
}
