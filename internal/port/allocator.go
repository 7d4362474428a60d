package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// Allocation is the result of binding a reservation: the reservation with
// its concrete port, plus the live sockets. Ownership of the sockets passes
// to the caller, who must Close the allocation when done.
type Allocation struct {
	Reservation model.Reservation

	// TCP is set for tcp and dual-protocol reservations.
	TCP net.Listener

	// UDP is set for udp and dual-protocol reservations.
	UDP net.PacketConn
}

// Close releases every socket held by the allocation.
func (a *Allocation) Close() error {
	var errs []error
	if a.TCP != nil {
		errs = append(errs, a.TCP.Close())
	}
	if a.UDP != nil {
		errs = append(errs, a.UDP.Close())
	}
	return errors.Join(errs...)
}

// Allocator binds reservations to live sockets.
//
// Unlike the Scanner, which releases what it binds, the Allocator keeps the
// sockets open and returns them. It retains no reference after returning.
type Allocator struct {
	host string
	lc   net.ListenConfig
}

// NewAllocator creates an Allocator that binds on the given host. The empty
// string binds all interfaces.
func NewAllocator(host string) *Allocator {
	return &Allocator{host: host}
}

// Allocate binds r and returns the live sockets.
//
// For ProtocolAny the same port number must be bound on TCP and UDP. TCP is
// bound first, resolving port 0 to a concrete number, then UDP is bound on
// that exact port. If UDP fails, the TCP listener is closed before the
// error, which wraps model.ErrPortMismatch, is returned.
func (a *Allocator) Allocate(ctx context.Context, r model.Reservation) (*Allocation, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch r.Protocol {
	case model.ProtocolTCP:
		ln, port, err := a.listenTCP(ctx, r.Port)
		if err != nil {
			return nil, err
		}
		r.Port = port
		return &Allocation{Reservation: r, TCP: ln}, nil

	case model.ProtocolUDP:
		conn, port, err := a.listenUDP(ctx, r.Port)
		if err != nil {
			return nil, err
		}
		r.Port = port
		return &Allocation{Reservation: r, UDP: conn}, nil

	default:
		ln, port, err := a.listenTCP(ctx, r.Port)
		if err != nil {
			return nil, err
		}
		conn, _, err := a.listenUDP(ctx, port)
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("%w on port %d: %w", model.ErrPortMismatch, port, err)
		}
		r.Port = port
		return &Allocation{Reservation: r, TCP: ln, UDP: conn}, nil
	}
}

func (a *Allocator) listenTCP(ctx context.Context, port int) (net.Listener, int, error) {
	ln, err := a.lc.Listen(ctx, "tcp", a.addr(port))
	if err != nil {
		return nil, 0, &model.BindError{Protocol: model.ProtocolTCP, Port: port, Err: err}
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}

func (a *Allocator) listenUDP(ctx context.Context, port int) (net.PacketConn, int, error) {
	conn, err := a.lc.ListenPacket(ctx, "udp", a.addr(port))
	if err != nil {
		return nil, 0, &model.BindError{Protocol: model.ProtocolUDP, Port: port, Err: err}
	}
	return conn, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

func (a *Allocator) addr(port int) string {
	return net.JoinHostPort(a.host, strconv.Itoa(port))
}
