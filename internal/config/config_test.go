package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, "memory", c.PresenceDriver)
	assert.Equal(t, 5*time.Second, c.AckTimeout)
	assert.Equal(t, 50, c.HistoryPageSize)
	assert.NotEmpty(t, c.NodeID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ACK_TIMEOUT", "750ms")
	t.Setenv("HISTORY_PAGE_SIZE", "20")
	t.Setenv("NODE_ID", "chat-2")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "chat-2", c.NodeID)
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, c.AckTimeout)
	assert.Equal(t, 20, c.HistoryPageSize)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET: from-file\nPRESENCE_DRIVER: redis\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.JWTSecret)
	assert.Equal(t, "redis", c.PresenceDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"unknown store", func(c *Config) { c.StoreDriver = "postgres" }},
		{"unknown presence", func(c *Config) { c.PresenceDriver = "etcd" }},
		{"zero ack timeout", func(c *Config) { c.AckTimeout = 0 }},
		{"page too large", func(c *Config) { c.HistoryPageSize = 1000 }},
		{"node id with separator", func(c *Config) { c.NodeID = "chat:2" }},
		{"empty node id", func(c *Config) { c.NodeID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{JWTSecret: "x", NodeID: "chat-1", StoreDriver: "memory", PresenceDriver: "memory", AckTimeout: time.Second, HistoryPageSize: 10}
			require.NoError(t, c.Validate())
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
