package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AMMD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AMMD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AMMD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AMMD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AMMD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "AMMD_CHAIN_RPC_URL")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "AMMD_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.Requester, "AMMD_ORACLE_REQUESTER")
	setDuration(&cfg.Oracle.PollInterval, "AMMD_ORACLE_POLL_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AMMD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AMMD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AMMD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AMMD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AMMD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AMMD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AMMD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AMMD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AMMD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AMMD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AMMD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AMMD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AMMD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AMMD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AMMD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AMMD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "AMMD_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.MarketTTL, "AMMD_REDIS_MARKET_TTL")
	setDuration(&cfg.Redis.PriceTTL, "AMMD_REDIS_PRICE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "AMMD_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AMMD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AMMD_S3_REGION")
	setStr(&cfg.S3.Bucket, "AMMD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AMMD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AMMD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AMMD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AMMD_S3_FORCE_PATH_STYLE")

	// ── AMM ──
	setStringSlice(&cfg.Amm.CollateralWhitelist, "AMMD_AMM_COLLATERAL_WHITELIST")
	setStr(&cfg.Amm.StorageToken, "AMMD_AMM_STORAGE_TOKEN")
	setUint64(&cfg.Amm.StoragePricePerByte, "AMMD_AMM_STORAGE_PRICE_PER_BYTE")
	setStringSlice(&cfg.Amm.MarketCreators, "AMMD_AMM_MARKET_CREATORS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AMMD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AMMD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AMMD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "AMMD_SERVER_ADMIN_API_KEY")
	setStr(&cfg.Server.AdminAPISecret, "AMMD_SERVER_ADMIN_API_SECRET")
	setInt(&cfg.Server.RateLimit, "AMMD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AMMD_SERVER_RATE_WINDOW")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "AMMD_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AMMD_MODE")
	setStr(&cfg.LogLevel, "AMMD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
