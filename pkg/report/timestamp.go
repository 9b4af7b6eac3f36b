package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// msThreshold splits epoch numbers into seconds and milliseconds: values
// below it are read as seconds, values at or above as milliseconds.
// Clients are split between the two conventions and the split point sits
// far from any plausible second count.
const msThreshold = 1_700_000_000_000

// Timestamp is a device-side measurement time. It accepts JSON epoch
// numbers in seconds or milliseconds, RFC3339 strings, and null; the
// zero value means "absent" and callers substitute the receive time.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes the accepted timestamp encodings.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", n.String(), err)
	}
	ms := int64(f)
	if ms < msThreshold {
		t.Time = time.Unix(ms, 0).UTC()
		return nil
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// MarshalJSON emits epoch milliseconds. The zero value emits null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// OrNow returns the parsed time, or now for the zero value.
func (t Timestamp) OrNow(now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.Time
}
