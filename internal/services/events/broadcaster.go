package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeProcessing EventType = "ability.processing"
	EventTypeCompleted  EventType = "ability.completed"
	EventTypeFailed     EventType = "ability.failed"
)

// Event is one request lifecycle notification.
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	PlayerID  string         `json:"player_id"`
	ComboKey  string         `json:"combo_key,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel is the Pub/Sub channel carrying one player's events.
func Channel(playerID string) string {
	return fmt.Sprintf("ability-events:%s", playerID)
}

// Broadcaster publishes events to Redis Pub/Sub for websocket distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishProcessing announces that the worker picked up a request.
func (b *Broadcaster) PublishProcessing(ctx context.Context, playerID, requestID, comboKey string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeProcessing,
		RequestID: requestID,
		PlayerID:  playerID,
		ComboKey:  comboKey,
		Data:      map[string]any{"status": "in_progress"},
	})
}

// PublishCompleted announces a finished request. ability is the generated
// (or fallback) ability document.
func (b *Broadcaster) PublishCompleted(ctx context.Context, playerID, requestID, comboKey string, ability json.RawMessage, fallback bool) error {
	return b.publish(ctx, Event{
		Type:      EventTypeCompleted,
		RequestID: requestID,
		PlayerID:  playerID,
		ComboKey:  comboKey,
		Data: map[string]any{
			"status":   "completed",
			"fallback": fallback,
			"ability":  ability,
		},
	})
}

// PublishFailed announces a request that could not reach the model.
func (b *Broadcaster) PublishFailed(ctx context.Context, playerID, requestID, comboKey, errorMsg string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeFailed,
		RequestID: requestID,
		PlayerID:  playerID,
		ComboKey:  comboKey,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	channel := Channel(event.PlayerID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
