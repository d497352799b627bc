package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCREENING_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "local", cfg.QueueDriver)
	require.Equal(t, 48*time.Hour, cfg.TokenTTL)
	require.Equal(t, 180*24*time.Hour, cfg.CooldownPeriod)
	require.Equal(t, 48*time.Hour, cfg.RejectionHold)
	require.Equal(t, time.Hour, cfg.FollowupsInterval)
	require.Equal(t, 50, cfg.FollowupsBatch)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCREENING_JWT_SECRET", "secret")
	t.Setenv("SCREENING_APP_PUBLIC_URL", "https://apply.example.com/")
	t.Setenv("SCREENING_TOKEN_TTL", "24h")
	t.Setenv("SCREENING_QUEUE_DRIVER", "nats")
	t.Setenv("SCREENING_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://apply.example.com", cfg.AppPublicURL)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, "nats", cfg.QueueDriver)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("SCREENING_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("SCREENING_JWT_SECRET", "secret")
	t.Setenv("SCREENING_QUEUE_DRIVER", "rabbitmq")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("SCREENING_QUEUE_DRIVER", "local")
	t.Setenv("SCREENING_TOKEN_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}
