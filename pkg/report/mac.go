package report

import (
	"fmt"
	"strings"
)

// NormalizeMAC reduces a MAC address to twelve lowercase hex digits.
// Separators and any other non-hex characters are stripped first; if the
// remainder is not exactly twelve digits the address is rejected.
// Normalization is idempotent, so "50:FF:20:EC:90:D7" and "50ff20ec90d7"
// collide to the same key.
func NormalizeMAC(s string) (string, error) {
	var b strings.Builder
	b.Grow(12)
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	if b.Len() != 12 {
		return "", fmt.Errorf("mac %q: %d hex digits after stripping, want 12", s, b.Len())
	}
	return b.String(), nil
}

const (
	localAddrBit     = 0x02
	multicastAddrBit = 0x01
)

// IsLocalMAC reports whether a normalized MAC is a locally administered
// address. Randomized client MACs set this bit, so such emitters carry
// no stable location signal.
func IsLocalMAC(norm string) bool {
	return firstOctet(norm)&localAddrBit != 0
}

// IsMulticastMAC reports whether a normalized MAC has the multicast bit
// set. Multicast addresses never identify a single radio.
func IsMulticastMAC(norm string) bool {
	return firstOctet(norm)&multicastAddrBit != 0
}

func firstOctet(norm string) byte {
	if len(norm) < 2 {
		return 0
	}
	return hexNibble(norm[0])<<4 | hexNibble(norm[1])
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}
