package jar

import (
	"fmt"

	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
)

// FindUnusedPort scans for a port the jar has not handed out and that the
// prober confirms is bindable for protocol, then returns it without
// reserving it.
//
// start is the preferred first candidate; zero or a port outside the scan
// range means "continue from the cursor". attempts bounds how many candidates
// the scan examines, the first one included, zero meaning unbounded. The scan fails with
// ErrAttemptsExhausted when the bound is hit and with ErrWrappedAround when
// it returns to its starting port; the former is checked first.
func (j *Jar) FindUnusedPort(start, attempts int, protocol model.Protocol) (int, error) {
	p, err := j.claimUnusedPort(start, attempts, protocol)
	if err != nil {
		return 0, err
	}
	j.mu.Lock()
	delete(j.pending, p)
	j.mu.Unlock()
	return p, nil
}

// claimUnusedPort is FindUnusedPort that leaves the returned port in the
// pending set. The caller must clear it, normally while committing.
func (j *Jar) claimUnusedPort(start, attempts int, protocol model.Protocol) (int, error) {
	if attempts < 0 {
		return 0, fmt.Errorf("attempts must be >= 0, got %d", attempts)
	}

	j.mu.Lock()
	if start < j.minPort || start > j.maxPort {
		start = j.nextScanPort
	}
	current := start
	remaining := attempts
	refused := make(map[int]struct{})

	for {
		for j.isTaken(current, refused) {
			j.nextScanPort = current
			current = j.nextPort(current)
			if attempts > 0 {
				remaining--
				if remaining == 0 {
					j.mu.Unlock()
					return 0, fmt.Errorf("%w after %d attempts starting at %d", model.ErrAttemptsExhausted, attempts, start)
				}
			}
			if current == start {
				j.mu.Unlock()
				return 0, fmt.Errorf("%w (%d-%d)", model.ErrWrappedAround, j.minPort, j.maxPort)
			}
		}

		// Claim the candidate, then probe without holding the lock.
		j.pending[current] = struct{}{}
		j.mu.Unlock()

		bound, err := j.prober.Probe(current, protocol)

		j.mu.Lock()
		if err == nil && bound == current {
			j.nextScanPort = j.nextPort(current)
			j.mu.Unlock()
			return current, nil
		}

		delete(j.pending, current)
		refused[current] = struct{}{}
		if err == nil {
			err = fmt.Errorf("prober bound %d instead", bound)
		}
		j.log.Debug("probe refused candidate",
			logger.Int("port", current),
			logger.String("protocol", protocol.Label()),
			logger.Error(err))
	}
}

// isTaken reports whether p is unavailable to the current scan. The caller
// holds j.mu.
func (j *Jar) isTaken(p int, refused map[int]struct{}) bool {
	if _, ok := j.occupied[p]; ok {
		return true
	}
	if _, ok := j.pending[p]; ok {
		return true
	}
	_, ok := refused[p]
	return ok
}

func (j *Jar) nextPort(p int) int {
	if p >= j.maxPort {
		return j.minPort
	}
	return p + 1
}
