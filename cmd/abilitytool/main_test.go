package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/ability-forge/internal/config"
	"github.com/jwebster45206/ability-forge/internal/services"
)

const sample = `{"name": "Steam Burst", "description": "Scalding vapor.", "color": "#cccccc",
 "ability": {"primitives": ["fire", "water"], "cooldown": 1.5, "effects": [{"script": [
  {"action": "spawn_projectile", "args": {"speed": 400}, "on_hit": [
   {"action": "damage", "args": {"amount": 20}}
  ]}
 ]}]}}`

func newTestApp(llm services.LLMService) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{
		stdout: &stdout,
		stderr: &stderr,
		newLLM: func(*config.Config, *slog.Logger) (services.LLMService, error) { return llm, nil },
	}, &stdout, &stderr
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_Usage(t *testing.T) {
	a, _, stderr := newTestApp(nil)
	assert.Equal(t, 2, a.run(context.Background(), nil))
	assert.Contains(t, stderr.String(), "Usage:")

	a, _, stderr = newTestApp(nil)
	assert.Equal(t, 2, a.run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	a, _, _ = newTestApp(nil)
	assert.Equal(t, 2, a.run(context.Background(), []string{"fix", "only-one"}))
}

func TestRun_FixThenAnalyze(t *testing.T) {
	in := writeFile(t, "data.jsonl", sample+"\n"+sample+"\n{\"name\": \"Broken\", \"ability\": {}}\n{\"name\": \"cut")
	out := filepath.Join(t.TempDir(), "fixed.json")

	a, stdout, stderr := newTestApp(nil)
	require.Equal(t, 0, a.run(context.Background(), []string{"fix", in, out}), stderr.String())
	assert.Contains(t, stdout.String(), "kept 2")
	assert.Contains(t, stdout.String(), "Broken - missing field: description")

	var fixed []map[string]any
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &fixed))
	assert.Len(t, fixed, 2)

	a, stdout, _ = newTestApp(nil)
	require.Equal(t, 0, a.run(context.Background(), []string{"analyze", out}))
	assert.Contains(t, stdout.String(), "OVERALL DIVERSITY SCORE")

	a, stdout, _ = newTestApp(nil)
	require.Equal(t, 0, a.run(context.Background(), []string{"analyze", "-json", out}))
	var rep map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	assert.EqualValues(t, 2, rep["entries"])
}

func TestRun_Validate(t *testing.T) {
	a, stdout, _ := newTestApp(nil)
	good := writeFile(t, "good.json", "Sure! Here it is:\n```json\n"+sample+"\n```")
	assert.Equal(t, 0, a.run(context.Background(), []string{"validate", good}))
	assert.Contains(t, stdout.String(), "Ability is valid")

	a, stdout, _ = newTestApp(nil)
	bad := writeFile(t, "bad.json", `{"primitives": ["fire"], "effects": [{"script": [{"action": "damage", "args": {"amount": 5}}]}]}`)
	assert.Equal(t, 1, a.run(context.Background(), []string{"validate", bad}))
	assert.Contains(t, stdout.String(), "orphaned_terminal")
}

func TestRun_Schema(t *testing.T) {
	a, stdout, _ := newTestApp(nil)
	require.Equal(t, 0, a.run(context.Background(), []string{"schema"}))
	var s map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &s))
	assert.Equal(t, "Generated Ability", s["title"])
}

func TestRun_Generate(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("CACHE_BACKEND", "memory")

	mock := services.NewMockLLM()
	a, stdout, stderr := newTestApp(mock)
	require.Equal(t, 0, a.run(context.Background(), []string{"generate", "water", "fire"}), stderr.String())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	_, calls := mock.GetCalls()
	assert.Len(t, calls, 1)

	failing := services.NewMockLLM()
	failing.SetChatError(assert.AnError)
	a, _, stderr = newTestApp(failing)
	assert.Equal(t, 1, a.run(context.Background(), []string{"generate", "ice", "air"}))
	assert.Contains(t, stderr.String(), "generation failed")
}
