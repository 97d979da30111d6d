package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StageLocal, cfg.Stage)
	assert.Equal(t, 4, cfg.Crew.MaxPerMission)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL())
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("stage: prod\ncrew:\n  max_per_mission: 6\n"))
	require.NoError(t, err)
	assert.Equal(t, StageProduction, cfg.Stage)
	assert.Equal(t, 6, cfg.Crew.MaxPerMission)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestFromYAMLRejects(t *testing.T) {
	cases := map[string]string{
		"stage":     "stage: staging\n",
		"max":       "crew:\n  max_per_mission: -1\n",
		"base path": "server:\n  base_path: v0\n",
		"hook url":  "webhooks:\n  - url: ftp://example.com\n",
		"hook evt":  "webhooks:\n  - url: http://example.com\n    events: [\"\"]\n",
		"syntax":    "crew: [",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestParseStageAliases(t *testing.T) {
	for in, want := range map[string]Stage{"Dev": StageDevelopment, "development": StageDevelopment, "PROD": StageProduction, "": StageLocal} {
		got, err := ParseStage(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Crew.MaxPerMission)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(Path(dir), []byte("crew:\n  max_per_mission: 2\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Crew.MaxPerMission)
}

func TestWebhookActive(t *testing.T) {
	off := false
	assert.False(t, WebhookConfig{URL: "http://x", Enabled: &off}.Active())
	assert.False(t, WebhookConfig{}.Active())
	assert.True(t, WebhookConfig{URL: "http://x"}.Active())
}
