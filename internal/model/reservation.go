package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Protocol is the transport a reservation applies to. The zero value,
// ProtocolAny, means the reservation covers both TCP and UDP.
type Protocol string

const (
	// ProtocolAny is the unspecified protocol: the port is wanted on both
	// TCP and UDP.
	ProtocolAny Protocol = ""

	// ProtocolTCP restricts a reservation to TCP.
	ProtocolTCP Protocol = "tcp"

	// ProtocolUDP restricts a reservation to UDP.
	ProtocolUDP Protocol = "udp"
)

// MaxPort is the highest valid TCP/UDP port number (2^16 - 1).
const MaxPort = 65535

// String returns the wire form of the protocol. ProtocolAny renders as the
// empty string, matching the registry line format where the segment is
// omitted.
func (p Protocol) String() string {
	return string(p)
}

// Label returns a human-readable protocol name for tables and logs.
func (p Protocol) Label() string {
	if p == ProtocolAny {
		return "tcp+udp"
	}
	return string(p)
}

// IsValid reports whether p is one of the known protocols.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolAny, ProtocolTCP, ProtocolUDP:
		return true
	default:
		return false
	}
}

// ParseProtocol converts a string to a Protocol. The empty string yields
// ProtocolAny.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid protocol %q (valid: tcp, udp, or empty for both)", s)
	}
	return p, nil
}

// Reservation binds a service to a port, optionally for a single protocol.
//
// Port 0 is a request for "any free port"; once a reservation is stored in
// a registry its port is always concrete.
type Reservation struct {
	// Service is the service name as written by the caller. The registry
	// keys reservations by Key(), not by this raw value.
	Service string `json:"service"`

	// Protocol is tcp, udp, or ProtocolAny for both.
	Protocol Protocol `json:"protocol,omitempty"`

	// Port is the port number (0-65535).
	Port int `json:"port"`
}

// lineRegex splits a trimmed registry line into its service token and the
// trailing decimal port. The service token is matched lazily so that the
// last whitespace-separated field is always the port.
var lineRegex = regexp.MustCompile(`^(.+?)[ \t]+([0-9]+)$`)

// ParseReservation parses one registry line of the form
//
//	<service>[/<protocol>] <port>
//
// Surrounding whitespace, including a trailing carriage return, is ignored.
// A "/" in the service token always starts the protocol suffix, which must
// be "tcp" or "udp". Lines that do not match the grammar return false; the
// caller decides whether that means skip or abort.
func ParseReservation(line string) (Reservation, bool) {
	m := lineRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Reservation{}, false
	}

	port, err := strconv.Atoi(m[2])
	if err != nil || port < 0 || port > MaxPort {
		return Reservation{}, false
	}

	service, proto, hasProto := strings.Cut(m[1], "/")
	if service == "" {
		return Reservation{}, false
	}

	r := Reservation{Service: service, Port: port}
	if hasProto {
		switch Protocol(proto) {
		case ProtocolTCP, ProtocolUDP:
			r.Protocol = Protocol(proto)
		default:
			return Reservation{}, false
		}
	}
	return r, true
}

// String renders the reservation as a registry line, without a trailing
// newline. The protocol segment is omitted when unspecified.
func (r Reservation) String() string {
	if r.Protocol == ProtocolAny {
		return fmt.Sprintf("%s %d", r.Service, r.Port)
	}
	return fmt.Sprintf("%s/%s %d", r.Service, r.Protocol, r.Port)
}

// Key returns the canonical service slug used as the registry mapping key.
func (r Reservation) Key() string {
	return EscapeService(r.Service)
}

// Matches reports whether o names the same (service, protocol, port) triple.
// Services are compared by slug.
func (r Reservation) Matches(o Reservation) bool {
	return r.Key() == o.Key() && r.Protocol == o.Protocol && r.Port == o.Port
}

// Validate checks field ranges for reservations built directly rather than
// parsed from a line. A valid reservation always survives String followed
// by ParseReservation unchanged.
func (r Reservation) Validate() error {
	if r.Service == "" {
		return fmt.Errorf("reservation: service name must not be empty")
	}
	if strings.Contains(r.Service, "/") {
		return fmt.Errorf("reservation: service name %q must not contain '/'", r.Service)
	}
	if strings.TrimSpace(r.Service) != r.Service {
		return fmt.Errorf("reservation: service name %q has leading or trailing whitespace", r.Service)
	}
	if strings.IndexFunc(r.Service, unicode.IsControl) >= 0 {
		return fmt.Errorf("reservation: service name %q contains a control character", r.Service)
	}
	if r.Port < 0 || r.Port > MaxPort {
		return fmt.Errorf("reservation: port %d out of range (0-%d)", r.Port, MaxPort)
	}
	if !r.Protocol.IsValid() {
		return fmt.Errorf("reservation: invalid protocol %q (valid: tcp, udp)", r.Protocol)
	}
	return nil
}

// EscapeService canonicalizes a service name into a slug. Every rune
// outside [A-Za-z0-9-] is prefixed with an underscore; the underscore is
// itself escaped so distinct names never share a slug.
func EscapeService(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		if !isSlugRune(c) {
			b.WriteByte('_')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func isSlugRune(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-'
}
