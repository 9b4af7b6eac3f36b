// Package logger implements a per-batch in-memory log buffer.
//
// Detail lines accumulate in a buffer while a batch of reports is being
// aggregated.
// ● On failure the buffer is replayed followed by the final error, so the
// log carries full diagnostics exactly when they matter.
// ● On success the buffer is dropped and one short summary line is written.
//
// Thread safety comes from a dedicated logger goroutine and a command
// channel; no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

// --- command types ----------------------------------------------------------

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act     action
	batchID string
	message string    // for Append
	summary string    // for Success
	err     error     // for FlushError
	when    time.Time // timestamp (for ordering, if ever needed)
}

// --- public entry points (they only send to the channel) --------------------

var ch = make(chan cmd, 128) // buffered against bursts

// Begin starts buffering for batchID.
func Begin(batchID string) { ch <- cmd{act: actBegin, batchID: batchID, when: time.Now()} }

// Append adds one detail line. Without an open buffer the line goes
// straight to the log.
func Append(batchID, msg string) {
	ch <- cmd{act: actAppend, batchID: batchID, message: msg, when: time.Now()}
}

// Success drops the buffer and writes one short summary line.
func Success(batchID, summary string) {
	ch <- cmd{act: actSuccess, batchID: batchID, summary: summary, when: time.Now()}
}

// FlushError replays the accumulated buffer plus the final error.
func FlushError(batchID string, err error) {
	ch <- cmd{act: actFlushErr, batchID: batchID, err: err, when: time.Now()}
}

// --- initialization: start the goroutine ------------------------------------

func init() { go runloop() }

// --- private implementation -------------------------------------------------

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.batchID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.batchID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer → write through
			}

		case actSuccess:
			log.Printf("[%-9s][worker] ✅ %s", c.batchID, c.summary)
			delete(buffers, c.batchID)

		case actFlushErr:
			if b := buffers[c.batchID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.batchID)
			}
			log.Printf("[%-9s][ERROR] %v", c.batchID, c.err)
		}
	}
}
