package protocol

import (
	"bytes"

	v2 "github.com/yndnr/votifier-go/internal/protocol/v2"
)

// Classification is the outcome of inspecting a connection prefix.
type Classification int

const (
	// NeedMore means the prefix is too short to decide.
	NeedMore Classification = iota
	// V1 selects the legacy RSA record.
	V1
	// V2 selects the token-authenticated record.
	V2
	// Unrecognized rejects the connection.
	Unrecognized
)

// String implements fmt.Stringer.
func (c Classification) String() string {
	switch c {
	case NeedMore:
		return "need_more"
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unrecognized"
	}
}

// MaxPrefixLen is the most bytes Differentiate ever inspects.
const MaxPrefixLen = 64

// match is how far a prefix agrees with a signature.
type match int

const (
	noMatch match = iota
	partial
	full
)

// foreignSignatures recognize protocols that are never vote traffic. v1
// records are opaque ciphertext, so only a whole signature that random bytes
// essentially never produce counts, never a short leading token.
var foreignSignatures = []func([]byte) match{
	tlsClientHello,
	httpRequest,
	sshBanner,
}

// Differentiate classifies the first bytes of a connection. It is a pure
// function of at most MaxPrefixLen bytes: the same prefix always yields the
// same answer.
func Differentiate(prefix []byte) Classification {
	if len(prefix) < 2 {
		return NeedMore
	}

	if prefix[0] == v2.MagicHi && prefix[1] == v2.MagicLo {
		return V2
	}

	if len(prefix) > MaxPrefixLen {
		prefix = prefix[:MaxPrefixLen]
	}
	undecided := false
	for _, signature := range foreignSignatures {
		switch signature(prefix) {
		case full:
			return Unrecognized
		case partial:
			undecided = true
		}
	}
	if undecided && len(prefix) < MaxPrefixLen {
		return NeedMore
	}

	return V1
}

// tlsHeaderLen covers the record header and the handshake header.
const (
	tlsHeaderLen = 9
	maxTLSRecord = 1 << 14
)

// tlsClientHello matches a TLS record carrying a complete-length
// ClientHello: 16 03 0v LL LL 01 00 HH HH with v <= 4 and HHHH == LLLL-4.
func tlsClientHello(p []byte) match {
	switch {
	case p[0] != 0x16:
		return noMatch
	case len(p) > 1 && p[1] != 0x03:
		return noMatch
	case len(p) > 2 && p[2] > 0x04:
		return noMatch
	case len(p) > 5 && p[5] != 0x01:
		return noMatch
	case len(p) > 6 && p[6] != 0x00:
		return noMatch
	case len(p) < tlsHeaderLen:
		return partial
	}

	record := int(p[3])<<8 | int(p[4])
	hello := int(p[7])<<8 | int(p[8])
	if record < 4 || record > maxTLSRecord || hello != record-4 {
		return noMatch
	}
	return full
}

var httpMethods = []string{
	"GET", "HEAD", "POST", "PUT", "DELETE", "CONNECT", "OPTIONS", "TRACE", "PATCH", "PRI",
}

// httpRequest matches "<method> <target> HTTP/" with a printable target.
func httpRequest(p []byte) match {
	best := noMatch
	for _, method := range httpMethods {
		best = max(best, requestLine(p, method))
	}
	return best
}

func requestLine(p []byte, method string) match {
	head := method + " "
	if m := literal(p, head); m != full {
		return m
	}

	rest := p[len(head):]
	sp := bytes.IndexByte(rest, ' ')
	target := rest
	if sp >= 0 {
		target = rest[:sp]
	}
	for _, c := range target {
		if c < 0x21 || c > 0x7E {
			return noMatch
		}
	}
	switch {
	case sp < 0:
		return partial
	case sp == 0:
		return noMatch
	}
	return literal(rest[sp+1:], "HTTP/")
}

// sshBanner matches an SSH identification string.
func sshBanner(p []byte) match {
	return max(literal(p, "SSH-2.0-"), literal(p, "SSH-1.99-"))
}

// literal compares p against lit over their common length.
func literal(p []byte, lit string) match {
	n := min(len(p), len(lit))
	if string(p[:n]) != lit[:n] {
		return noMatch
	}
	if n < len(lit) {
		return partial
	}
	return full
}
