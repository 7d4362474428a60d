package server

import (
	"context"

	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/store"
)

// Persister writes the jar text to a store after every mutation.
type Persister struct {
	jar         *jar.Jar
	store       store.Store
	logger      logger.Logger
	events      <-chan jar.Event
	unsubscribe func()
}

// NewPersister subscribes to j immediately, so no mutation made after it
// returns is missed. Run must be called to consume the subscription.
func NewPersister(j *jar.Jar, st store.Store, log logger.Logger) *Persister {
	events, unsubscribe := j.Subscribe()
	return &Persister{jar: j, store: st, logger: log, events: events, unsubscribe: unsubscribe}
}

// Run saves after each event until ctx is done, then saves once more.
// Bursts of events collapse into a single save, since the jar text already
// reflects all of them.
func (p *Persister) Run(ctx context.Context) error {
	defer p.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return p.save(context.WithoutCancel(ctx))
		case _, ok := <-p.events:
			if !ok {
				return nil
			}
			drain(p.events)
			if err := p.save(ctx); err != nil {
				p.logger.Error("failed to persist jar", logger.Error(err))
			}
		}
	}
}

func (p *Persister) save(ctx context.Context) error {
	if err := p.store.Save(ctx, p.jar.String()); err != nil {
		return err
	}
	p.logger.Debug("jar persisted", logger.Int("reservations", p.jar.Len()))
	return nil
}

func drain(events <-chan jar.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
