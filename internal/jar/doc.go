// Package jar implements the port registry.
//
// A Jar tracks which service owns which port. It keeps an ordered list of
// reservations per service, an index of occupied ports for O(1) collision
// checks, and a scan cursor so that successive "any port" requests spread
// across the configured range instead of restarting at its bottom.
//
// Reservations that ask for port 0 are resolved eagerly: the jar scans the
// range circularly for a port it has not handed out, marks the candidate as
// pending, and asks a Prober (normally a port.Scanner) to confirm the OS
// would let it bind there. A refused probe rolls the pending mark back and
// the scan moves on.
//
// The jar is an in-memory object. Persistence goes through String and
// Parse; storing the text is up to the caller.
package jar
