package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
)

// ErrInvariant marks stored aggregates that contradict their own
// invariants (box missing its centroid, non-positive weight). Callers fail
// closed instead of serving corrupt data.
var ErrInvariant = errors.New("emitter aggregate invariant violated")

// IsRetryable reports whether an error looks transient: connection loss,
// serialization conflicts, deadlocks, or a busy sqlite file. The worker
// re-reserves its batch on these; request handlers answer 503.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected eof",
		"i/o timeout",
		"sqlstate 40001", // serialization_failure
		"sqlstate 40p01", // deadlock_detected
		"serialization",
		"deadlock",
		"database is locked",
		"sqlite_busy",
		"resource busy",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
