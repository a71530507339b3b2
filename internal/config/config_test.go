package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8788", cfg.Addr)
	assert.Equal(t, 20, cfg.DBMaxOpenConns)
	assert.Equal(t, 10, cfg.DBMaxIdleConns)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "qbank-archive", cfg.MinioBucket)
	assert.False(t, cfg.MinioUseSSL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QBANK_DB_MAX_OPEN_CONNS", "4")
	t.Setenv("QBANK_DB_MAX_IDLE_CONNS", "2")
	t.Setenv("QBANK_CACHE_TTL_SECONDS", "60")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	assert.Equal(t, 4, cfg.DBMaxOpenConns)
	assert.Equal(t, 2, cfg.DBMaxIdleConns)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.MinioUseSSL)
}

func TestLoadIgnoresGarbageInts(t *testing.T) {
	t.Setenv("QBANK_DB_MAX_OPEN_CONNS", "lots")

	assert.Equal(t, 20, Load().DBMaxOpenConns)
}
