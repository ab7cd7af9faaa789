package transport

import (
	"fmt"
	"strings"
)

// Kind identifies the transport a peer endpoint is reachable over.
type Kind uint8

const (
	// KindTCP is a stream endpoint addressed as host:port.
	KindTCP Kind = iota
	// KindUDP is a datagram endpoint addressed as host:port.
	KindUDP
	// KindBP is a Bundle-Protocol endpoint addressed as a DTN node
	// identifier (e.g. "ipn:3.1") rather than an IP socket address.
	KindBP
)

// String returns the wire tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindBP:
		return "bp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Endpoint is a (transport kind, address) pair. Its canonical textual form
// is "<kind> <address>", e.g. "tcp 127.0.0.1:8000" or "bp ipn:3.1"; that
// form is embedded in wire envelopes so the recipient knows where to ACK.
type Endpoint struct {
	Kind    Kind
	Address string
}

// ParseEndpoint parses the canonical "<kind> <address>" form.
func ParseEndpoint(s string) (Endpoint, error) {
	tag, addr, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || addr == "" {
		return Endpoint{}, fmt.Errorf("malformed endpoint %q: want \"<kind> <address>\"", s)
	}

	var kind Kind
	switch strings.ToLower(tag) {
	case "tcp":
		kind = KindTCP
	case "udp":
		kind = KindUDP
	case "bp":
		kind = KindBP
	default:
		return Endpoint{}, fmt.Errorf("unknown transport kind %q in endpoint %q", tag, s)
	}

	return Endpoint{Kind: kind, Address: strings.TrimSpace(addr)}, nil
}

// String renders the canonical form parsed by ParseEndpoint.
func (e Endpoint) String() string {
	return e.Kind.String() + " " + e.Address
}

// Equal reports whether both kind and address match exactly.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Kind == other.Kind && e.Address == other.Address
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.Address == ""
}
