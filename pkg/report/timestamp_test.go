package report

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampUnmarshal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"milliseconds", "1726000000000", time.UnixMilli(1726000000000).UTC()},
		{"seconds", "1726000000", time.Unix(1726000000, 0).UTC()},
		{"just below threshold", "1699999999999", time.Unix(1699999999999, 0).UTC()},
		{"at threshold", "1700000000000", time.UnixMilli(1700000000000).UTC()},
		{"rfc3339", `"2026-08-24T12:00:00Z"`, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)},
		{"rfc3339 offset", `"2026-08-24T15:00:00+03:00"`, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)},
		{"null", "null", time.Time{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tc.in), &ts); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if !ts.Time.Equal(tc.want) {
				t.Fatalf("got %v, want %v", ts.Time, tc.want)
			}
		})
	}
}

func TestTimestampUnmarshalRejects(t *testing.T) {
	t.Parallel()
	for _, in := range []string{`"yesterday"`, `{}`, `[1]`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err == nil {
			t.Errorf("unmarshal %s succeeded, want error", in)
		}
	}
}

func TestTimestampOrNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var zero Timestamp
	if got := zero.OrNow(now); !got.Equal(now) {
		t.Fatalf("zero OrNow = %v, want %v", got, now)
	}
	set := Timestamp{Time: now.Add(-time.Hour)}
	if got := set.OrNow(now); !got.Equal(now.Add(-time.Hour)) {
		t.Fatalf("set OrNow = %v, want the stored time", got)
	}
}

func TestTimestampMarshal(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Timestamp{Time: time.UnixMilli(1726000000123).UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1726000000123" {
		t.Fatalf("marshal = %s, want 1726000000123", b)
	}
	b, err = json.Marshal(Timestamp{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "null" {
		t.Fatalf("zero marshal = %s, want null", b)
	}
}
