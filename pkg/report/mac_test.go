package report

import "testing"

func TestNormalizeMAC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare lowercase", "50ff20ec90d7", "50ff20ec90d7", false},
		{"bare uppercase", "50FF20EC90D7", "50ff20ec90d7", false},
		{"colons upper", "50:FF:20:EC:90:D7", "50ff20ec90d7", false},
		{"dashes", "50-ff-20-ec-90-d7", "50ff20ec90d7", false},
		{"dots", "50ff.20ec.90d7", "50ff20ec90d7", false},
		{"too short", "50ff20ec90", "", true},
		{"too long", "50ff20ec90d7aa", "", true},
		{"non-hex letters", "zzff20ec90d7", "", true},
		{"empty", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeMAC(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NormalizeMAC(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMAC(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeMAC(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestNormalizeMACIdempotent feeds normalized output back through and
// expects the identical string.
func TestNormalizeMACIdempotent(t *testing.T) {
	t.Parallel()
	first, err := NormalizeMAC("5C:A6:E6:69:E5:EC")
	if err != nil {
		t.Fatal(err)
	}
	second, err := NormalizeMAC(first)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("normalize not idempotent: %q then %q", first, second)
	}
}

func TestMACBits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mac       string
		local     bool
		multicast bool
	}{
		{"50ff20ec90d7", false, false}, // universal unicast
		{"0250ff20ec90", true, false},  // locally administered
		{"0150ff20ec90", false, true},  // multicast
		{"0350ff20ec90", true, true},   // both bits
		{"ffffffffffff", true, true},   // broadcast
	}
	for _, tc := range tests {
		if got := IsLocalMAC(tc.mac); got != tc.local {
			t.Errorf("IsLocalMAC(%q) = %v, want %v", tc.mac, got, tc.local)
		}
		if got := IsMulticastMAC(tc.mac); got != tc.multicast {
			t.Errorf("IsMulticastMAC(%q) = %v, want %v", tc.mac, got, tc.multicast)
		}
	}
}
