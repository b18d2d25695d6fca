package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Opener opens the store for one player.
type Opener func(playerID string) (Store, error)

// SQLiteOpener opens one database file per player under dir.
func SQLiteOpener(dir string) Opener {
	return func(playerID string) (Store, error) {
		path, err := PlayerPath(dir, playerID)
		if err != nil {
			return nil, err
		}
		return OpenSQLite(path)
	}
}

// RedisOpener scopes a shared client to each player.
func RedisOpener(client *redis.Client) Opener {
	return func(playerID string) (Store, error) {
		return NewRedisStore(client, playerID)
	}
}

// MemoryOpener gives every player a fresh in-memory store.
func MemoryOpener() Opener {
	return func(playerID string) (Store, error) {
		if !ValidPlayerID(playerID) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPlayer, playerID)
		}
		return NewMemoryStore(), nil
	}
}

// Registry keeps one open Store per player.
type Registry struct {
	open   Opener
	mu     sync.Mutex
	stores map[string]Store
}

// NewRegistry returns a Registry that opens stores on first use.
func NewRegistry(open Opener) *Registry {
	return &Registry{open: open, stores: map[string]Store{}}
}

// For returns the player's store, opening it if needed.
func (r *Registry) For(playerID string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[playerID]; ok {
		return s, nil
	}
	s, err := r.open(playerID)
	if err != nil {
		return nil, fmt.Errorf("open cache for %s: %w", playerID, err)
	}
	r.stores[playerID] = s
	return s, nil
}

// Players lists players with an open store.
func (r *Registry) Players() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stores))
	for id := range r.stores {
		out = append(out, id)
	}
	return out
}

// Close closes every open store.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for id, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache for %s: %w", id, err))
		}
		delete(r.stores, id)
	}
	return errors.Join(errs...)
}
