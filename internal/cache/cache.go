// Package cache stores generated abilities per player, keyed by combo key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
)

// CachedAbility is one stored ability.
type CachedAbility struct {
	ComboKey    string    `json:"combo_key"`
	AbilityJSON string    `json:"ability_json"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
	UseCount    int       `json:"use_count"`
}

// Ability decodes the stored JSON.
func (c *CachedAbility) Ability() (*effect.AbilityV2, error) {
	a, err := ingest.ParseAbility(c.AbilityJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached ability %s: %w", c.ComboKey, err)
	}
	return a, nil
}

// Stats summarizes a player's cache.
type Stats struct {
	Count     int `json:"count"`
	TotalUses int `json:"total_uses"`
}

// Store is one player's ability cache. Get returns nil, nil on a miss.
// Put is an upsert: the first Put inserts with use_count 1, later Puts
// overwrite the JSON and version and increment use_count.
type Store interface {
	Get(ctx context.Context, comboKey string) (*CachedAbility, error)
	Put(ctx context.Context, comboKey, abilityJSON string, version int) error
	RecordUse(ctx context.Context, comboKey string) error
	List(ctx context.Context) ([]CachedAbility, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) error
	Close() error
}

var (
	ErrInvalidPlayer = errors.New("invalid player id")
	ErrEmptyKey      = errors.New("combo key is required")
)

var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidPlayerID reports whether id is safe to use in a file path or key.
func ValidPlayerID(id string) bool {
	return playerIDPattern.MatchString(id)
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }
