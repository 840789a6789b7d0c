package storage

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Tier identifies a persistence tier for small identity values.
type Tier string

const (
	// TierDurable survives process restarts and reboots
	TierDurable Tier = "durable"
	// TierSession survives only for the lifetime of the current session
	TierSession Tier = "session"
	// TierMemory survives only within the current process
	TierMemory Tier = "memory"
)

// Store is a minimal key-value store backing a single tier. Implementations
// may fail; the resolver absorbs those failures.
type Store interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
}

// Resolver abstracts over the three persistence tiers. Writes walk
// durable, session, memory in order and stop at the first tier that
// accepts; reads consult the same order so values written in a more
// persistent mode are still found later. Storage unavailability degrades
// silently to a weaker persistence guarantee and is never surfaced as an
// error to callers.
type Resolver struct {
	mu       sync.Mutex
	durable  Store
	session  Store
	memory   map[string]string
	lastTier Tier
	logger   *logrus.Entry
}

// NewResolver creates a resolver over the given tiers. Either store may be
// nil when the corresponding tier failed to open.
func NewResolver(durable, session Store, logger *logrus.Logger) *Resolver {
	return &Resolver{
		durable:  durable,
		session:  session,
		memory:   make(map[string]string),
		lastTier: TierMemory,
		logger:   logger.WithField("component", "storage"),
	}
}

// Read returns the value for key from the strongest tier holding it.
func (r *Resolver) Read(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tier := range []struct {
		name  Tier
		store Store
	}{
		{TierDurable, r.durable},
		{TierSession, r.session},
	} {
		if tier.store == nil {
			continue
		}
		value, ok, err := tier.store.Get(key)
		if err != nil {
			r.logger.WithError(err).WithField("tier", tier.name).Debug("Tier read failed")
			continue
		}
		if ok {
			return value, true
		}
	}

	value, ok := r.memory[key]
	return value, ok
}

// Write stores the value in the strongest tier that accepts it. The chosen
// tier is recorded and observable via Tier().
func (r *Resolver) Write(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.durable != nil {
		if err := r.durable.Put(key, value); err == nil {
			r.lastTier = TierDurable
			return
		} else {
			r.logger.WithError(err).Warn("Durable tier write failed, falling back to session tier")
		}
	}

	if r.session != nil {
		if err := r.session.Put(key, value); err == nil {
			r.lastTier = TierSession
			return
		} else {
			r.logger.WithError(err).Warn("Session tier write failed, falling back to memory")
		}
	}

	r.memory[key] = value
	r.lastTier = TierMemory
}

// Remove deletes the key from every tier. Tier failures are ignored so a
// removal never surfaces an error.
func (r *Resolver) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.durable != nil {
		if err := r.durable.Delete(key); err != nil {
			r.logger.WithError(err).Debug("Durable tier remove failed")
		}
	}
	if r.session != nil {
		if err := r.session.Delete(key); err != nil {
			r.logger.WithError(err).Debug("Session tier remove failed")
		}
	}
	delete(r.memory, key)
}

// Tier reports the tier that accepted the most recent write. Before any
// write it reports TierMemory.
func (r *Resolver) Tier() Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTier
}
