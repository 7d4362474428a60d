package jar

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
	"github.com/mmr-tortoise/portjar/internal/port"
)

const (
	// DefaultMinPort is the bottom of the default scan range, the first
	// port above the privileged range.
	DefaultMinPort = 1025

	// DefaultMaxPort is the top of the default scan range.
	DefaultMaxPort = model.MaxPort
)

// Prober confirms that the OS would let us bind a port. port.Scanner is the
// production implementation.
type Prober interface {
	Probe(port int, protocol model.Protocol) (int, error)
}

// Jar is the in-memory port registry.
//
// Every port in the occupied index belongs to exactly one stored
// reservation and every stored reservation has its port in the index. All
// methods are safe for concurrent use; the state lock is not held while a
// probe is in flight.
type Jar struct {
	mu sync.Mutex

	// services maps a service slug to its reservations in insertion order.
	services map[string][]model.Reservation

	// order lists service slugs in the order they were first reserved.
	order []string

	// occupied maps a port to the slug of the service holding it.
	occupied map[int]string

	// pending holds ports claimed by a scan whose probe has not finished.
	pending map[int]struct{}

	minPort      int
	maxPort      int
	nextScanPort int
	maxAttempts  int

	prober Prober
	log    logger.Logger

	subMu     sync.Mutex
	subs      map[int]chan Event
	nextSubID int
}

// Option configures a Jar.
type Option func(*Jar)

// WithRange sets the inclusive port range scanned for port 0 requests.
func WithRange(minPort, maxPort int) Option {
	return func(j *Jar) {
		j.minPort = minPort
		j.maxPort = maxPort
	}
}

// WithProber replaces the OS-level socket prober.
func WithProber(p Prober) Option {
	return func(j *Jar) { j.prober = p }
}

// WithMaxAttempts bounds how many candidate ports a single scan examines,
// the first one included, so n=1 fails as soon as the first candidate is
// taken. Zero means unbounded; the scan then stops when it wraps around.
func WithMaxAttempts(n int) Option {
	return func(j *Jar) { j.maxAttempts = n }
}

// WithLogger sets the logger used for reserve, drop and probe decisions.
func WithLogger(l logger.Logger) Option {
	return func(j *Jar) { j.log = l }
}

// New creates an empty Jar.
func New(opts ...Option) (*Jar, error) {
	j := &Jar{
		services: make(map[string][]model.Reservation),
		occupied: make(map[int]string),
		pending:  make(map[int]struct{}),
		minPort:  DefaultMinPort,
		maxPort:  DefaultMaxPort,
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(j)
	}

	if j.minPort < 1 || j.maxPort > model.MaxPort || j.minPort > j.maxPort {
		return nil, fmt.Errorf("invalid port range %d-%d (must be within 1-%d)", j.minPort, j.maxPort, model.MaxPort)
	}
	if j.maxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0, got %d", j.maxAttempts)
	}
	if j.prober == nil {
		j.prober = port.NewScanner("")
	}
	if j.log == nil {
		j.log = logger.NewNop()
	}
	j.nextScanPort = j.minPort
	return j, nil
}

// Range returns the inclusive scan range.
func (j *Jar) Range() (int, int) {
	return j.minPort, j.maxPort
}

// Reserve processes text line by line, in order. Blank lines are skipped.
//
// The first failing line aborts the batch and is reported as a
// *model.LineError wrapping ErrInvalidLine, ErrPortOccupied,
// ErrAttemptsExhausted or ErrWrappedAround. Lines before it stay committed
// and are returned alongside the error; nothing is rolled back.
func (j *Jar) Reserve(text string) ([]model.Reservation, error) {
	return j.reserveLines(strings.Split(text, "\n"), false)
}

// ReserveAll is Reserve for reservations that were built rather than
// parsed. The same partial-commit rule applies.
func (j *Jar) ReserveAll(list []model.Reservation) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0, len(list))
	for i, r := range list {
		if err := r.Validate(); err != nil {
			return out, &model.LineError{Line: i + 1, Text: r.String(), Err: fmt.Errorf("%w: %v", model.ErrInvalidLine, err)}
		}
		res, err := j.reserveOne(r)
		if err != nil {
			return out, &model.LineError{Line: i + 1, Text: r.String(), Err: err}
		}
		out = append(out, res)
	}
	return out, nil
}

func (j *Jar) reserveLines(lines []string, skipInvalid bool) ([]model.Reservation, error) {
	var out []model.Reservation
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, ok := model.ParseReservation(line)
		if !ok {
			if skipInvalid {
				j.log.Warn("skipping invalid line", logger.Int("line", i+1), logger.String("text", line))
				continue
			}
			return out, &model.LineError{Line: i + 1, Text: line, Err: model.ErrInvalidLine}
		}
		res, err := j.reserveOne(r)
		if err != nil {
			return out, &model.LineError{Line: i + 1, Text: line, Err: err}
		}
		out = append(out, res)
	}
	return out, nil
}

func (j *Jar) reserveOne(r model.Reservation) (model.Reservation, error) {
	if r.Port == 0 {
		p, err := j.claimUnusedPort(0, j.maxAttempts, r.Protocol)
		if err != nil {
			return model.Reservation{}, err
		}
		r.Port = p

		j.mu.Lock()
		delete(j.pending, p)
	} else {
		j.mu.Lock()
		if holder, taken := j.holder(r.Port); taken {
			j.mu.Unlock()
			return model.Reservation{}, fmt.Errorf("%w: port %d is held by %s", model.ErrPortOccupied, r.Port, holder)
		}
	}
	j.commit(r)
	j.emit(Event{Kind: EventReserved, Reservation: r})
	j.mu.Unlock()

	j.log.Debug("port reserved",
		logger.String("service", r.Service),
		logger.String("protocol", r.Protocol.Label()),
		logger.Int("port", r.Port))
	return r, nil
}

// commit stores r. The caller holds j.mu and has checked r.Port is free.
func (j *Jar) commit(r model.Reservation) {
	key := r.Key()
	if _, ok := j.services[key]; !ok {
		j.order = append(j.order, key)
	}
	j.services[key] = append(j.services[key], r)
	j.occupied[r.Port] = key
}

// holder reports who holds port, counting in-flight scan claims. The
// caller holds j.mu.
func (j *Jar) holder(p int) (string, bool) {
	if key, ok := j.occupied[p]; ok {
		return key, true
	}
	if _, ok := j.pending[p]; ok {
		return "a pending scan", true
	}
	return "", false
}

// Drop parses line and removes the reservation matching its service,
// protocol and port. Unknown services and unmatched reservations both
// return ErrNotFound.
func (j *Jar) Drop(line string) error {
	r, ok := model.ParseReservation(line)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrInvalidLine, strings.TrimSpace(line))
	}
	return j.DropReservation(r)
}

// DropReservation removes the reservation matching r's (service, protocol,
// port) triple, frees its port and deletes the service entry when its
// list becomes empty.
func (j *Jar) DropReservation(r model.Reservation) error {
	key := r.Key()

	j.mu.Lock()
	list, ok := j.services[key]
	if !ok {
		j.mu.Unlock()
		return fmt.Errorf("%w: no reservations for service %q", model.ErrNotFound, r.Service)
	}

	idx := -1
	for i := range list {
		if list[i].Matches(r) {
			idx = i
			break
		}
	}
	if idx < 0 {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrNotFound, r)
	}

	removed := list[idx]
	rest := make([]model.Reservation, 0, len(list)-1)
	rest = append(rest, list[:idx]...)
	rest = append(rest, list[idx+1:]...)

	if len(rest) == 0 {
		delete(j.services, key)
		j.removeFromOrder(key)
	} else {
		j.services[key] = rest
	}
	delete(j.occupied, removed.Port)
	j.emit(Event{Kind: EventDropped, Reservation: removed})
	j.mu.Unlock()

	j.log.Debug("port dropped",
		logger.String("service", removed.Service),
		logger.String("protocol", removed.Protocol.Label()),
		logger.Int("port", removed.Port))
	return nil
}

func (j *Jar) removeFromOrder(key string) {
	for i, k := range j.order {
		if k == key {
			j.order = append(j.order[:i], j.order[i+1:]...)
			return
		}
	}
}

// ReservationsFor returns a copy of the reservations held by service, in
// insertion order, or ErrUnknownService.
func (j *Jar) ReservationsFor(service string) ([]model.Reservation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	list, ok := j.services[model.EscapeService(service)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownService, service)
	}
	out := make([]model.Reservation, len(list))
	copy(out, list)
	return out, nil
}

// Reservations returns every reservation, services in insertion order and
// each service's list in insertion order.
func (j *Jar) Reservations() []model.Reservation {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]model.Reservation, 0, len(j.occupied))
	for _, key := range j.order {
		out = append(out, j.services[key]...)
	}
	return out
}

// Lookup returns the reservation holding port.
func (j *Jar) Lookup(p int) (model.Reservation, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key, ok := j.occupied[p]
	if !ok {
		return model.Reservation{}, false
	}
	for _, r := range j.services[key] {
		if r.Port == p {
			return r, true
		}
	}
	return model.Reservation{}, false
}

// Len returns the number of stored reservations.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.occupied)
}

// String serializes the jar, one reservation per line with a trailing
// newline each. The order is insertion order, not sorted, so two jars with
// the same contents built in a different order serialize differently.
func (j *Jar) String() string {
	var b strings.Builder
	for _, r := range j.Reservations() {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}
