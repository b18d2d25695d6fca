package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishesToPlayerChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	sub := client.Subscribe(ctx, Channel("p1"))
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	b := NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, b.PublishProcessing(ctx, "p1", "r1", "fire+water"))
	require.NoError(t, b.PublishCompleted(ctx, "p1", "r1", "fire+water", json.RawMessage(`{"name":"Steam"}`), true))
	require.NoError(t, b.PublishFailed(ctx, "p2", "r2", "air+ice", "timeout"))

	ch := sub.Channel()
	var got []Event
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %d events", len(got))
		}
	}

	assert.Equal(t, EventTypeProcessing, got[0].Type)
	assert.Equal(t, EventTypeCompleted, got[1].Type)
	assert.Equal(t, "fire+water", got[1].ComboKey)
	assert.Equal(t, true, got[1].Data["fallback"])
	ability, ok := got[1].Data["ability"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Steam", ability["name"])

	select {
	case msg := <-ch:
		t.Errorf("p1 should not see other players' events: %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}
