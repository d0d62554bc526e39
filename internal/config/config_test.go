package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresMasterSecret(t *testing.T) {
	t.Setenv("QUILL_MASTER_SECRET", "")

	_, err := Load(Overrides{})
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUILL_MASTER_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("IDEMPOTENCY_RETENTION", "")
	t.Setenv("SUBSCRIBER_QUEUE_DEPTH", "")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, ":3010", cfg.Addr)
	require.Equal(t, "./quill.db", cfg.DatabasePath)
	require.Equal(t, 10*time.Minute, cfg.IdempotencyRetention)
	require.Equal(t, 256, cfg.SubscriberQueueDepth)
	require.False(t, cfg.Debug)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUILL_MASTER_SECRET", "s3cret")
	t.Setenv("PORT", "4000")
	t.Setenv("DATABASE_PATH", "/tmp/quill-test.db")
	t.Setenv("DEBUG", "true")
	t.Setenv("IDEMPOTENCY_RETENTION", "30m")
	t.Setenv("SUBSCRIBER_QUEUE_DEPTH", "64")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.Addr)
	require.Equal(t, "/tmp/quill-test.db", cfg.DatabasePath)
	require.True(t, cfg.Debug)
	require.Equal(t, 30*time.Minute, cfg.IdempotencyRetention)
	require.Equal(t, 64, cfg.SubscriberQueueDepth)
}

func TestOverridesWinOverEnvironment(t *testing.T) {
	t.Setenv("QUILL_MASTER_SECRET", "")
	t.Setenv("PORT", "4000")

	addr := ":5000"
	secret := "override-secret"
	retention := time.Minute
	cfg, err := Load(Overrides{
		Addr:                 &addr,
		MasterSecret:         &secret,
		IdempotencyRetention: &retention,
	})
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.Addr)
	require.Equal(t, "override-secret", cfg.MasterSecret)
	require.Equal(t, time.Minute, cfg.IdempotencyRetention)
}
