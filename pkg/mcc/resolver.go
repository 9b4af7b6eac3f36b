// Package mcc provides an offline mapper from mobile country codes to
// ISO 3166-1 alpha-2 regions.  The table is static because ITU
// allocations change on the scale of years, echoing the Go Proverb
// "Clear is better than clever" so operators can audit the mapping at a
// glance.
package mcc

import "strings"

// regions is populated via buildRegions in data.go.  We keep the slice
// as a package-level variable so Resolve can stay allocation free.
var regions = buildRegions()

// regionByMCC keeps the direct lookup used by the resolver workers.
var regionByMCC = buildMCCIndex(regions)

// nameByCode keeps a quick lookup for English country names.  It is
// derived once from the prepared slice to keep Resolve simple.
var nameByCode = buildNameIndex(regions)

// query represents a single Resolve request forwarded to background
// workers.  The reply channel is buffered to avoid blocking when callers
// abandon a lookup early.
type query struct {
	mcc   int16
	reply chan result
}

// result collects the ISO code and English name for a mobile country
// code.
type result struct {
	code string
	name string
}

// resolveRequests feeds Resolve work to the background pool.  Using a
// channel rather than a mutex embraces the Go proverb "Share memory by
// communicating" so concurrent callers do not need explicit locking.
var resolveRequests chan query

// init spins up a small worker pool.  The export snapshot walks every
// stored cell through this pool, so a handful of workers is plenty.
func init() {
	const workerCount = 4
	resolveRequests = make(chan query, workerCount)
	for i := 0; i < workerCount; i++ {
		go resolverWorker(resolveRequests)
	}
}

// resolverWorker processes resolve queries sequentially per goroutine so
// the main Resolve function can stay a thin dispatcher.
func resolverWorker(in <-chan query) {
	for req := range in {
		code, name := resolveMCC(req.mcc)
		// A buffered channel prevents a blocked send if the
		// caller timed out and forgot to read the result.
		req.reply <- result{code: code, name: name}
	}
}

// Resolve finds an ISO 3166-1 alpha-2 code and English name for the
// provided mobile country code.  When the code is unallocated or
// reserved for test networks we return empty strings so callers may fall
// back to "unknown" labels.
func Resolve(mobileCountry int16) (string, string) {
	// ITU allocates geographic MCCs in [200, 799]; 9xx codes belong to
	// international networks and carry no region.
	if mobileCountry < 200 || mobileCountry > 799 {
		return "", ""
	}

	reply := make(chan result, 1)
	req := query{mcc: mobileCountry, reply: reply}

	// Try the worker pool first to honour the channel-driven design.
	select {
	case resolveRequests <- req:
	default:
		// When the queue is saturated we resolve inline to keep
		// latency low for the export walk.
		return resolveMCC(mobileCountry)
	}

	res := <-reply
	return res.code, res.name
}

// resolveMCC is the direct table lookup shared by workers and the inline
// fallback.
func resolveMCC(mobileCountry int16) (string, string) {
	if r, ok := regionByMCC[mobileCountry]; ok {
		return r.code, r.name
	}
	return "", ""
}

// NameFor returns the stored English country name for an ISO code.  The
// lookup is forgiving with input case so external callers can pass
// arbitrary user data.
func NameFor(code string) string {
	if code == "" {
		return ""
	}
	upper := strings.ToUpper(code)
	if name, ok := nameByCode[upper]; ok {
		return name
	}
	return ""
}

// buildMCCIndex constructs the MCC lookup once during package
// initialisation.  Doing this eagerly avoids locking at runtime, keeping
// Resolve cheap for every caller.
func buildMCCIndex(list []region) map[int16]region {
	out := make(map[int16]region, len(list))
	for _, r := range list {
		if _, ok := out[r.mcc]; !ok {
			out[r.mcc] = r
		}
	}
	return out
}

// buildNameIndex constructs a map from ISO code to English name.  The
// first entry per code wins so shared allocations stay deterministic.
func buildNameIndex(list []region) map[string]string {
	out := make(map[string]string, len(list))
	for _, r := range list {
		if _, ok := out[r.code]; !ok {
			out[r.code] = r.name
		}
	}
	return out
}
