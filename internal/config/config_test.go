package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALERT_TTL", "")
	t.Setenv("STORE_BACKEND", "")

	cfg := Load()

	assert.Equal(t, 300*time.Second, cfg.AlertTTL)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, int64(5_000_000), cfg.MaxUploadBytes)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ALERT_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 90*time.Second, cfg.AlertTTL)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestCloudinaryConfigured(t *testing.T) {
	cfg := App{CloudinaryCloudName: "demo", CloudinaryAPIKey: "k"}
	assert.False(t, cfg.CloudinaryConfigured())

	cfg.CloudinaryAPISecret = "s"
	assert.True(t, cfg.CloudinaryConfigured())
}
