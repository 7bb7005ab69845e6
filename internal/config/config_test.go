package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Chain.RPCURL = "https://rpc.example.org"
	cfg.Oracle.BaseURL = "https://oracle.example.org"
	cfg.Amm.StorageToken = "0x00000000000000000000000000000000000000aa"
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "server"

[wallet]
private_key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[chain]
rpc_url = "https://rpc.example.org"

[oracle]
base_url = "https://oracle.example.org"
poll_interval = "2s"

[amm]
storage_token = "0x00000000000000000000000000000000000000aa"

[redis]
lock_ttl = "30s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, 2*time.Second, cfg.Oracle.PollInterval.Duration)
	require.Equal(t, 30*time.Second, cfg.Redis.LockTTL.Duration)

	// Untouched sections keep their defaults.
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, int64(100_000), cfg.Redis.StreamMaxLen)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[wallet]
private_key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
`)
	t.Setenv("AMMD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("AMMD_SERVER_PORT", "9999")
	t.Setenv("AMMD_ORACLE_POLL_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 45*time.Second, cfg.Oracle.PollInterval.Duration)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
	require.Contains(t, err.Error(), "wallet")
	require.Contains(t, err.Error(), "rpc_url")
	require.Contains(t, err.Error(), "oracle")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	for _, mode := range []string{"server", "settlement", "full"} {
		cfg.Mode = mode
		require.NoError(t, cfg.Validate())
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.AdminAPIKey = "ops"
	cfg.Server.AdminAPISecret = "ops-secret"

	red := RedactedConfig(&cfg)
	require.NotContains(t, red.Wallet.PrivateKey, cfg.Wallet.PrivateKey)
	require.NotEqual(t, "pg-pass", red.Postgres.Password)
	require.NotEqual(t, "redis-pass", red.Redis.Password)
	require.NotEqual(t, "s3-secret", red.S3.SecretKey)
	require.NotEqual(t, "ops-secret", red.Server.AdminAPISecret)

	// Originals untouched.
	require.Equal(t, "pg-pass", cfg.Postgres.Password)
}
