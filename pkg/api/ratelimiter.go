package api

import (
	"context"
	"time"
)

// ==========================
// Per-IP rate limiting logic
// ==========================

// RequestKind splits traffic into the unauthenticated ingestion calls,
// which are merely sequenced per IP, and the snapshot downloads, which
// additionally sit out a cooldown between completions.
type RequestKind int

const (
	// RequestGeneral sequences requests from one IP so an unauthenticated
	// client cannot hold many handler goroutines at once.
	RequestGeneral RequestKind = iota
	// RequestHeavy marks large downloads. After each one finishes the
	// same IP waits out the cooldown before the next begins.
	RequestHeavy
)

// RateLimiter coordinates per-IP request sequencing without mutexes.
// Each IP gets its own goroutine, so the design follows "Do not
// communicate by sharing memory; share memory by communicating".
type RateLimiter struct {
	heavyCooldown time.Duration
	requests      chan keyedRequest
	now           func() time.Time
}

type keyedRequest struct {
	ip  string
	req ipRequest
}

type ipRequest struct {
	ctx      context.Context
	kind     RequestKind
	response chan acquireResponse
}

type acquireResponse struct {
	release chan struct{}
	err     error
}

// Permit is an acquired slot. Release it when the handler finished so
// the next queued request from the same IP can proceed.
type Permit struct {
	release chan struct{}
}

// Release signals the IP worker that the request is done. The channel is
// nilled out so double releases are harmless.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewRateLimiter constructs a limiter with the given cooldown for heavy
// downloads and starts its coordination goroutine.
func NewRateLimiter(heavyCooldown time.Duration) *RateLimiter {
	limiter := &RateLimiter{
		heavyCooldown: heavyCooldown,
		requests:      make(chan keyedRequest),
		now:           time.Now,
	}

	go limiter.loop()

	return limiter
}

// Acquire reserves the slot for the given IP and kind, waiting behind
// earlier requests from the same IP. The error is the context's when the
// caller gives up first.
func (l *RateLimiter) Acquire(ctx context.Context, ip string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}

	respCh := make(chan acquireResponse, 1)
	req := ipRequest{ctx: ctx, kind: kind, response: respCh}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- keyedRequest{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{release: resp.release}, nil
	}
}

// loop hands each request to the goroutine owning its IP, spawning owners
// on first contact.
func (l *RateLimiter) loop() {
	workers := make(map[string]chan ipRequest)

	for keyed := range l.requests {
		ch, ok := workers[keyed.ip]
		if !ok {
			ch = make(chan ipRequest)
			workers[keyed.ip] = ch
			go l.runIPWorker(ch)
		}

		select {
		case ch <- keyed.req:
		case <-keyed.req.ctx.Done():
			keyed.req.response <- acquireResponse{err: keyed.req.ctx.Err()}
		}
	}
}

// runIPWorker serializes one IP's requests and enforces the heavy
// cooldown between downloads.
func (l *RateLimiter) runIPWorker(requests <-chan ipRequest) {
	var lastHeavyFinish time.Time

	for req := range requests {
		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		default:
		}

		if req.kind == RequestHeavy && !lastHeavyFinish.IsZero() {
			readyAt := lastHeavyFinish.Add(l.heavyCooldown)
			if now := l.now(); now.Before(readyAt) {
				timer := time.NewTimer(readyAt.Sub(now))
				select {
				case <-req.ctx.Done():
					if !timer.Stop() {
						<-timer.C
					}
					req.response <- acquireResponse{err: req.ctx.Err()}
					continue
				case <-timer.C:
				}
			}
		}

		release := make(chan struct{})

		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		case req.response <- acquireResponse{release: release}:
		}

		// Wait for the handler to finish even when its context dies; the
		// deferred Release still runs and keeps this worker unblocked.
		select {
		case <-release:
		case <-req.ctx.Done():
			<-release
		}

		if req.kind == RequestHeavy {
			lastHeavyFinish = l.now()
		}
	}
}
