package port

import (
	"fmt"
	"net"
	"strconv"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// Scanner checks whether ports are bindable on the host.
//
// It asks the operating system directly by binding and immediately closing
// a socket, rather than parsing /proc/net/* or shelling out to lsof/ss. A
// successful probe is an existence check, not a reservation: the port is
// released again before Probe returns.
type Scanner struct {
	// host is the bind address. The empty string binds all interfaces,
	// which is where real services will later listen.
	host string
}

// NewScanner creates a Scanner that probes on the given bind host.
func NewScanner(host string) *Scanner {
	return &Scanner{host: host}
}

// Probe binds port for the given protocol and releases it again.
//
// ProtocolTCP and ProtocolUDP bind a single socket. ProtocolAny binds TCP
// first and then UDP on the same concrete port, since a dual-protocol
// reservation is only useful if both are free. When port is 0 the OS picks
// the port and the chosen number is returned.
//
// A refused bind is returned as a *model.BindError.
func (s *Scanner) Probe(port int, protocol model.Protocol) (int, error) {
	switch protocol {
	case model.ProtocolTCP:
		ln, err := net.Listen("tcp", s.addr(port))
		if err != nil {
			return 0, &model.BindError{Protocol: model.ProtocolTCP, Port: port, Err: err}
		}
		bound := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()
		return bound, nil

	case model.ProtocolUDP:
		conn, err := net.ListenPacket("udp", s.addr(port))
		if err != nil {
			return 0, &model.BindError{Protocol: model.ProtocolUDP, Port: port, Err: err}
		}
		bound := conn.LocalAddr().(*net.UDPAddr).Port
		_ = conn.Close()
		return bound, nil

	case model.ProtocolAny:
		ln, err := net.Listen("tcp", s.addr(port))
		if err != nil {
			return 0, &model.BindError{Protocol: model.ProtocolTCP, Port: port, Err: err}
		}
		defer func() { _ = ln.Close() }()

		bound := ln.Addr().(*net.TCPAddr).Port
		conn, err := net.ListenPacket("udp", s.addr(bound))
		if err != nil {
			return 0, &model.BindError{Protocol: model.ProtocolUDP, Port: bound, Err: err}
		}
		_ = conn.Close()
		return bound, nil

	default:
		return 0, fmt.Errorf("probe port %d: invalid protocol %q", port, protocol)
	}
}

// IsPortAvailable reports whether port can currently be bound for protocol.
func (s *Scanner) IsPortAvailable(port int, protocol model.Protocol) bool {
	if port < 1 || port > model.MaxPort {
		return false
	}
	_, err := s.Probe(port, protocol)
	return err == nil
}

func (s *Scanner) addr(port int) string {
	return net.JoinHostPort(s.host, strconv.Itoa(port))
}
