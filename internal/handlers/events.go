package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/services/events"
)

const (
	keepaliveInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

// EventsHandler forwards a player's ability lifecycle events from Redis
// Pub/Sub to a websocket.
type EventsHandler struct {
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(redisClient *redis.Client, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /v1/events/players/{player_id}
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("player_id")
	if !cache.ValidPlayerID(playerID) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid player_id")
		return
	}
	log := h.logger.With("player_id", playerID)

	ctx := r.Context()
	channel := events.Channel(playerID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Error("Failed to close pubsub", "error", err)
		}
	}()
	// Wait for the subscription so no event published after the upgrade is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error("Failed to subscribe", "error", err, "channel", channel)
		writeError(w, h.logger, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	log.Info("Event stream connected", "remote_addr", r.RemoteAddr)

	// The reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(conn, events.Event{
		Type:     "connected",
		PlayerID: playerID,
		Data:     map[string]any{"message": "Connected to event stream"},
	}); err != nil {
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			log.Info("Event stream disconnected")
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if err := h.send(conn, event); err != nil {
				log.Warn("Failed to forward event", "error", err)
				return
			}
		case <-keepalive.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn("Keepalive failed", "error", err)
				return
			}
		}
	}
}

func (h *EventsHandler) send(conn *websocket.Conn, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", "error", err)
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
