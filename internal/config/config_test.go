// ABOUTME: Tests for configuration loading, env expansion, and validation.
// ABOUTME: Covers defaults, duration parsing, and required-field errors.

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/relaydesk.db
operator:
  token: "12345:operator-token"
  group_id: -1001234567890
vault:
  key: "`+validKey()+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(-1001234567890), cfg.Operator.GroupID)

	// Defaults kick in for absent durations
	assert.Equal(t, DefaultEnvelopeTTL, cfg.Relay.EnvelopeTTL)
	assert.Equal(t, DefaultWindow, cfg.MediaGroup.Window)
	assert.Equal(t, DefaultRenameDelay, cfg.Topics.RenameDelay)
	assert.Equal(t, DefaultRenameGap, cfg.Topics.RenameGap)
	assert.Equal(t, DefaultPollTimeout, cfg.Poll.Timeout)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/relaydesk.db
operator:
  token: "t"
  group_id: 1
vault:
  key: "`+validKey()+`"
relay:
  envelope_ttl: 30m
mediagroup:
  window: 750ms
topics:
  rename_delay: 2s
  rename_gap: 250ms
poll:
  timeout: 45s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Relay.EnvelopeTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.MediaGroup.Window)
	assert.Equal(t, 2*time.Second, cfg.Topics.RenameDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Topics.RenameGap)
	assert.Equal(t, 45*time.Second, cfg.Poll.Timeout)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RELAYDESK_TEST_TOKEN", "secret-token")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/relaydesk.db
operator:
  token: "${RELAYDESK_TEST_TOKEN}"
  group_id: 1
vault:
  key: "`+validKey()+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Operator.Token)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/relaydesk.db
operator:
  token: "t"
  group_id: 1
vault:
  key: "`+validKey()+`"
mediagroup:
  window: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mediagroup.window")
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing operator token", func(c *Config) { c.Operator.Token = "" }, "operator.token"},
		{"missing group id", func(c *Config) { c.Operator.GroupID = 0 }, "operator.group_id"},
		{"missing vault key", func(c *Config) { c.Vault.Key = "" }, "vault.key"},
		{"short vault key", func(c *Config) { c.Vault.Key = base64.StdEncoding.EncodeToString([]byte("short")) }, "32 bytes"},
		{"bad vault base64", func(c *Config) { c.Vault.Key = "!!!" }, "base64"},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "/tmp/x.db"},
				Operator: OperatorConfig{Token: "t", GroupID: 1},
				Vault:    VaultConfig{Key: validKey()},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVaultKey_Roundtrip(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	cfg := &Config{Vault: VaultConfig{Key: base64.StdEncoding.EncodeToString(raw)}}

	key := cfg.VaultKey()
	assert.Equal(t, raw, key[:])
}
