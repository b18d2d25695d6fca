package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/jwebster45206/ability-forge/internal/forge"
	"github.com/jwebster45206/ability-forge/internal/handlers"
	"github.com/jwebster45206/ability-forge/internal/services/events"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// decodeResponse reads resp into out when its status is one of ok.
func decodeResponse(resp *http.Response, out any, ok ...int) (int, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	for _, code := range ok {
		if resp.StatusCode != code {
			continue
		}
		if out == nil || len(body) == 0 {
			return code, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return code, fmt.Errorf("failed to parse response: %w", err)
		}
		return code, nil
	}
	var errorResp handlers.ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return resp.StatusCode, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp.StatusCode, fmt.Errorf("%s", errorResp.Error)
}

// requestAbility asks for a combination. Exactly one of the returned
// pointers is set on success.
func requestAbility(client *http.Client, baseURL, playerID string, primitives []string, force bool) (*handlers.AbilityResponse, *handlers.PendingResponse, error) {
	jsonData, err := json.Marshal(handlers.AbilityRequest{
		PlayerID:   playerID,
		Primitives: primitives,
		Force:      force,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(baseURL+"/v1/abilities", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var raw json.RawMessage
	code, err := decodeResponse(resp, &raw, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return nil, nil, err
	}
	if code == http.StatusAccepted {
		var pending handlers.PendingResponse
		if err := json.Unmarshal(raw, &pending); err != nil {
			return nil, nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return nil, &pending, nil
	}
	var hit handlers.AbilityResponse
	if err := json.Unmarshal(raw, &hit); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &hit, nil, nil
}

func getRequest(client *http.Client, baseURL, requestID string) (*forge.RequestState, error) {
	resp, err := client.Get(baseURL + "/v1/requests/" + url.PathEscape(requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var st forge.RequestState
	if _, err := decodeResponse(resp, &st, http.StatusOK); err != nil {
		return nil, err
	}
	return &st, nil
}

func getAbility(client *http.Client, baseURL, playerID, comboKey string) (*handlers.AbilityResponse, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/abilities/%s/%s", baseURL, url.PathEscape(playerID), url.PathEscape(comboKey)))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var rec handlers.AbilityResponse
	if _, err := decodeResponse(resp, &rec, http.StatusOK); err != nil {
		return nil, err
	}
	return &rec, nil
}

func listAbilities(client *http.Client, baseURL, playerID string) ([]handlers.AbilityResponse, error) {
	resp, err := client.Get(baseURL + "/v1/abilities/" + url.PathEscape(playerID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var list []handlers.AbilityResponse
	if _, err := decodeResponse(resp, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

func clearCache(client *http.Client, baseURL, playerID string) error {
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/v1/cache/"+url.PathEscape(playerID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, err = decodeResponse(resp, nil, http.StatusNoContent)
	return err
}

// eventsURL turns the API base URL into the player's websocket URL.
func eventsURL(baseURL, playerID string) string {
	u := strings.Replace(baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/v1/events/players/" + url.PathEscape(playerID)
}

// listenToEvents streams lifecycle events into eventChan until ctx ends or
// the connection drops. The server only offers the stream when Redis is
// configured, so a failed dial is not fatal to the console.
func listenToEvents(ctx context.Context, baseURL, playerID string, eventChan chan<- events.Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, eventsURL(baseURL, playerID), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error reading event stream: %w", err)
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case eventChan <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
