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
// built-in defaults, applies BONDABLE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known BONDABLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Admin, "BONDABLE_LEDGER_ADMIN")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "BONDABLE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BONDABLE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BONDABLE_WALLET_KEY_PASSWORD")

	// ── Custody ──
	setStr(&cfg.Custody.RPCURL, "BONDABLE_CUSTODY_RPC_URL")
	setInt64(&cfg.Custody.ChainID, "BONDABLE_CUSTODY_CHAIN_ID")
	setUint64(&cfg.Custody.GasLimit, "BONDABLE_CUSTODY_GAS_LIMIT")
	setDuration(&cfg.Custody.ReceiptTimeout, "BONDABLE_CUSTODY_RECEIPT_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BONDABLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BONDABLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BONDABLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BONDABLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BONDABLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BONDABLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BONDABLE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BONDABLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BONDABLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BONDABLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BONDABLE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BONDABLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BONDABLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BONDABLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BONDABLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BONDABLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BONDABLE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MarketCacheTTL, "BONDABLE_REDIS_MARKET_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BONDABLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BONDABLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BONDABLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BONDABLE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BONDABLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BONDABLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BONDABLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BONDABLE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchivePrefix, "BONDABLE_S3_ARCHIVE_PREFIX")
	setDuration(&cfg.S3.ArchiveInterval, "BONDABLE_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BONDABLE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BONDABLE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BONDABLE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BONDABLE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BONDABLE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BONDABLE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BONDABLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BONDABLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BONDABLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BONDABLE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BONDABLE_MODE")
	setStr(&cfg.LogLevel, "BONDABLE_LOG_LEVEL")
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
