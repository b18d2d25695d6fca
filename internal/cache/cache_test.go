package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openTempSQLite(t *testing.T, c *clock) Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "p1", "abilities.db"))
	require.NoError(t, err)
	s.now = c.now
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openTestRedis(t *testing.T, c *clock) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, err := NewRedisStore(client, "p1")
	require.NoError(t, err)
	s.now = c.now
	return s
}

func openTestMemory(_ *testing.T, c *clock) Store {
	s := NewMemoryStore()
	s.now = c.now
	return s
}

var backends = []struct {
	name string
	open func(*testing.T, *clock) Store
}{
	{"sqlite", openTempSQLite},
	{"redis", openTestRedis},
	{"memory", openTestMemory},
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	key := effect.ComboKey([]string{"water", "fire"})
	abilityJSON := `{"primitives":["fire","water"],"effects":[{"script":[{"action":"spawn_projectile"}]}]}`

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			c := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
			s := b.open(t, c)

			miss, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, miss, "miss returns nil, nil")

			require.NoError(t, s.Put(ctx, key, abilityJSON, 2))
			created := c.t
			c.advance(time.Minute)
			require.NoError(t, s.Put(ctx, key, abilityJSON, 2))

			rec, err := s.Get(ctx, effect.ComboKey([]string{"fire", "water"}))
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, abilityJSON, rec.AbilityJSON)
			assert.Equal(t, 2, rec.UseCount, "use_count increments once per Put")
			assert.Equal(t, 2, rec.Version)
			assert.True(t, rec.CreatedAt.Equal(created), "created_at kept across upserts")
			assert.True(t, rec.LastUsed.Equal(c.t))

			c.advance(time.Minute)
			require.NoError(t, s.RecordUse(ctx, key))
			require.NoError(t, s.RecordUse(ctx, "missing+key"))
			rec, err = s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 3, rec.UseCount)
			assert.True(t, rec.LastUsed.Equal(c.t))

			require.NoError(t, s.Put(ctx, "air+ice", `{"v":3}`, 3))
			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Count: 2, TotalUses: 4}, stats)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "air+ice", list[0].ComboKey, "most recently used first")

			require.NoError(t, s.Clear(ctx))
			stats, err = s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{}, stats)
		})
	}
}

func TestStore_ForceRegenerateOverwrites(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, &clock{t: time.Now()})
			require.NoError(t, s.Put(ctx, "fire+ice", `{"old":true}`, 1))
			require.NoError(t, s.Put(ctx, "fire+ice", `{"new":true}`, 2))

			rec, err := s.Get(ctx, "fire+ice")
			require.NoError(t, err)
			assert.Equal(t, `{"new":true}`, rec.AbilityJSON)
			assert.Equal(t, 2, rec.Version)
			assert.Equal(t, 2, rec.UseCount)
		})
	}
}

func TestStore_KeysNamedLikeIndex(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, &clock{t: time.Now()})
			for _, key := range []string{"index", "combo:index", "fire+water"} {
				require.NoError(t, s.Put(ctx, key, `{"k":1}`, 2), key)
			}

			rec, err := s.Get(ctx, "index")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, "index", rec.ComboKey)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Count: 3, TotalUses: 3}, stats)

			require.NoError(t, s.Clear(ctx))
			stats, err = s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{}, stats)
		})
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, err := NewRedisStore(client, "p1")
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "index", `{}`, 2))
	assert.True(t, mr.Exists("abilities:p1:combo:index"))
	members, err := mr.SMembers("abilities:p1:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"index"}, members)
}

func TestStore_EmptyKey(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, &clock{t: time.Now()})
			assert.ErrorIs(t, s.Put(context.Background(), "", "{}", 1), ErrEmptyKey)
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "abilities.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "earth+fire", `{"a":1}`, 2))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get(ctx, "earth+fire")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.UseCount)
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(SQLiteOpener(dir))
	defer reg.Close()

	a, err := reg.For("player-1")
	require.NoError(t, err)
	again, err := reg.For("player-1")
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := reg.For("player-2")
	require.NoError(t, err)
	require.NoError(t, a.Put(context.Background(), "fire+water", "{}", 2))
	rec, err := b.Get(context.Background(), "fire+water")
	require.NoError(t, err)
	assert.Nil(t, rec, "players do not share a cache")

	_, err = reg.For("../escape")
	assert.ErrorIs(t, err, ErrInvalidPlayer)

	assert.FileExists(t, filepath.Join(dir, "player-1", "abilities.db"))
	assert.ElementsMatch(t, []string{"player-1", "player-2"}, reg.Players())
}

func TestCachedAbility_Decode(t *testing.T) {
	fb := effect.Fallback([]string{"fire", "water"})
	data, err := fb.ToJSON()
	require.NoError(t, err)

	rec := CachedAbility{ComboKey: "fire+water", AbilityJSON: string(data)}
	a, err := rec.Ability()
	require.NoError(t, err)
	assert.True(t, fb.Equal(a))
}
