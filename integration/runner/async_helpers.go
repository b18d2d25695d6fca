package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jwebster45206/ability-forge/internal/forge"
	"github.com/jwebster45206/ability-forge/internal/handlers"
	"github.com/jwebster45206/ability-forge/pkg/effect"
)

const (
	// PollInterval is how often to check a pending request
	PollInterval = 500 * time.Millisecond
	// GenerationTimeout is max time to wait for a queued generation to settle
	GenerationTimeout = 90 * time.Second
)

// StatsResponse mirrors GET /v1/cache/{player_id}/stats.
type StatsResponse struct {
	PlayerID  string `json:"player_id"`
	Count     int    `json:"count"`
	TotalUses int    `json:"total_uses"`
}

// PostAbility posts an ability request. A cache hit returns the ability; a
// queued generation returns the pending request.
func PostAbility(ctx context.Context, client *http.Client, baseURL, playerID string, primitives []string, force bool) (*handlers.AbilityResponse, *handlers.PendingResponse, error) {
	body, err := json.Marshal(handlers.AbilityRequest{PlayerID: playerID, Primitives: primitives, Force: force})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ability request: %w", err)
	}

	resp, err := send(ctx, client, http.MethodPost, baseURL+"/v1/abilities", body)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var hit handlers.AbilityResponse
		if err := json.NewDecoder(resp.Body).Decode(&hit); err != nil {
			return nil, nil, fmt.Errorf("failed to decode ability: %w", err)
		}
		return &hit, nil, nil
	case http.StatusAccepted:
		var pending handlers.PendingResponse
		if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
			return nil, nil, fmt.Errorf("failed to decode pending request: %w", err)
		}
		return nil, &pending, nil
	default:
		return nil, nil, unexpected("abilities", resp)
	}
}

// GetRequest retrieves the state of a generation request
func GetRequest(ctx context.Context, client *http.Client, baseURL, requestID string) (*forge.RequestState, error) {
	var state forge.RequestState
	if err := getJSON(ctx, client, baseURL+"/v1/requests/"+url.PathEscape(requestID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetAbility retrieves a cached ability without counting a use
func GetAbility(ctx context.Context, client *http.Client, baseURL, playerID, comboKey string) (*handlers.AbilityResponse, error) {
	var ability handlers.AbilityResponse
	u := fmt.Sprintf("%s/v1/abilities/%s/%s", baseURL, url.PathEscape(playerID), url.PathEscape(comboKey))
	if err := getJSON(ctx, client, u, &ability); err != nil {
		return nil, err
	}
	return &ability, nil
}

// GetStats retrieves the player's cache statistics
func GetStats(ctx context.Context, client *http.Client, baseURL, playerID string) (*StatsResponse, error) {
	var stats StatsResponse
	if err := getJSON(ctx, client, baseURL+"/v1/cache/"+url.PathEscape(playerID)+"/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ClearCache removes every ability cached for the player
func ClearCache(ctx context.Context, client *http.Client, baseURL, playerID string) error {
	resp, err := send(ctx, client, http.MethodDelete, baseURL+"/v1/cache/"+url.PathEscape(playerID), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		return unexpected("clear cache", resp)
	}
	return nil
}

// Simulate casts an ability against the default dummies
func Simulate(ctx context.Context, client *http.Client, baseURL string, ability *effect.AbilityV2) (*handlers.SimulateResponse, error) {
	raw, err := json.Marshal(ability)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ability: %w", err)
	}
	body, err := json.Marshal(map[string]json.RawMessage{"ability": raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal simulate request: %w", err)
	}

	resp, err := send(ctx, client, http.MethodPost, baseURL+"/v1/abilities/simulate", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, unexpected("simulate", resp)
	}

	var sim handlers.SimulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&sim); err != nil {
		return nil, fmt.Errorf("failed to decode simulation: %w", err)
	}
	return &sim, nil
}

// PollForRequest polls a pending request until it completes or fails
func PollForRequest(ctx context.Context, client *http.Client, baseURL, requestID string) (*forge.RequestState, error) {
	timeout := time.After(GenerationTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for request %s (waited %v)", requestID, GenerationTimeout)
		case <-ticker.C:
			state, err := GetRequest(ctx, client, baseURL, requestID)
			if err != nil {
				// Keep polling; the server may be busy
				continue
			}
			if state.Status.Terminal() {
				return state, nil
			}
		}
	}
}

func send(ctx context.Context, client *http.Client, method, u string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s %s: %w", method, u, err)
	}
	return resp, nil
}

func getJSON(ctx context.Context, client *http.Client, u string, out any) error {
	resp, err := send(ctx, client, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return unexpected(u, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", u, err)
	}
	return nil
}

func unexpected(what string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s returned %d: %s", what, resp.StatusCode, string(body))
}
