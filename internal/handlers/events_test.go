package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/ability-forge/internal/services/events"
)

func newEventsServer(t *testing.T) (*httptest.Server, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mux := http.NewServeMux()
	mux.Handle("GET /v1/events/players/{player_id}", NewEventsHandler(client, testLogger()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, client
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestEventsHandler_ForwardsPlayerEvents(t *testing.T) {
	srv, client := newEventsServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/players/p1"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	hello := readEvent(t, conn)
	assert.Equal(t, events.EventType("connected"), hello.Type)
	assert.Equal(t, "p1", hello.PlayerID)

	b := events.NewBroadcaster(client, testLogger())
	ctx := context.Background()
	require.NoError(t, b.PublishProcessing(ctx, "other", "r0", "air+ice"))
	require.NoError(t, b.PublishProcessing(ctx, "p1", "r1", "fire+water"))
	require.NoError(t, b.PublishCompleted(ctx, "p1", "r1", "fire+water", json.RawMessage(`{"name":"Steam"}`), false))

	ev := readEvent(t, conn)
	assert.Equal(t, events.EventTypeProcessing, ev.Type)
	assert.Equal(t, "r1", ev.RequestID)

	ev = readEvent(t, conn)
	assert.Equal(t, events.EventTypeCompleted, ev.Type)
	assert.Equal(t, "fire+water", ev.ComboKey)
	ability, ok := ev.Data["ability"].(map[string]any)
	require.True(t, ok, "ability payload: %v", ev.Data)
	assert.Equal(t, "Steam", ability["name"])
}

func TestEventsHandler_RejectsBadPlayer(t *testing.T) {
	srv, _ := newEventsServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/players/bad.player"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
