package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realtime.yaml")
	body := []byte(`
server:
  port: 9000
database:
  driver: sqlite
  sqlite_path: /tmp/calls.db
livekit:
  url: https://media.example.com
  token_ttl: 30m
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/calls.db", cfg.Database.SQLitePath)
	assert.Equal(t, "https://media.example.com", cfg.LiveKit.URL)
	assert.Equal(t, 30*time.Minute, cfg.LiveKit.TokenTTL)
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mongo"

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_ProductionRequiresMediaCredentials(t *testing.T) {
	cfg := Default()
	cfg.Server.Environment = "production"

	assert.Error(t, cfg.Validate())

	cfg.LiveKit.APIKey = "APIkey"
	cfg.LiveKit.APISecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	db := Default().Database
	db.Password = "pw"

	assert.Equal(t, "postgresql://postgres:pw@localhost:5432/learnhub?sslmode=disable", db.PostgresDSN())
}
