// Package port talks to the host networking stack on behalf of the
// registry.
//
// The Scanner is the socket prober: it binds a candidate port with
// net.Listen / net.ListenPacket to confirm the OS would let us have it, and
// closes the socket straight away. The Allocator performs the same binds but
// hands the live sockets to the caller, coordinating TCP and UDP on the
// identical port number when a reservation leaves its protocol unspecified.
package port
