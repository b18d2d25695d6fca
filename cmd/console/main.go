package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/services/events"
)

type ConsoleConfig struct {
	APIBaseURL string
	PlayerID   string
	Timeout    time.Duration
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		PlayerID:   getEnv("PLAYER_ID", "console"),
		Timeout:    30 * time.Second,
	}
	if !cache.ValidPlayerID(cfg.PlayerID) {
		fmt.Fprintf(os.Stderr, "Invalid PLAYER_ID %q: use letters, digits, '-' or '_'\n", cfg.PlayerID)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evs := make(chan events.Event, 16)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- listenToEvents(ctx, cfg.APIBaseURL, cfg.PlayerID, evs)
	}()

	p := tea.NewProgram(NewConsoleUI(cfg, client, evs, streamDone),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
