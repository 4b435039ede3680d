// Package config handles application configuration.
//
// Settings come from four layers, later layers winning:
//   - Network defaults (mainnet or devnet)
//   - The klingpay.conf file in the data directory
//   - KLINGPAY_* environment variables
//   - Command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the Solana cluster the node talks to.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Devnet  NetworkType = "devnet"
)

// Config holds node runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// RPC / REST server
	RPC RPCConfig

	// Wallet keystore
	Wallet WalletConfig

	// Third-party endpoints
	Upstream UpstreamConfig

	// Response cache
	Cache CacheConfig

	// Remote P2P trading API
	Trade TradeConfig

	// Per-client request limits
	RateLimit RateLimitConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Enabled bool `conf:"wallet.enabled"`

	// Argon2id parameters for newly created keystores.
	KDFMemory     uint32 `conf:"wallet.kdf_memory"` // KiB
	KDFIterations uint32 `conf:"wallet.kdf_iterations"`
	KDFThreads    uint8  `conf:"wallet.kdf_threads"`
}

// UpstreamConfig lists the third-party services the proxies reach.
type UpstreamConfig struct {
	SolanaRPC      []string      `conf:"upstream.solana_rpc"`
	HeliusKey      string        `conf:"upstream.helius_key"`
	MoralisURL     string        `conf:"upstream.moralis_url"`
	MoralisKey     string        `conf:"upstream.moralis_key"`
	JupiterURL     string        `conf:"upstream.jupiter_url"`
	DexScreenerURL string        `conf:"upstream.dexscreener_url"`
	CoinGeckoURL   string        `conf:"upstream.coingecko_url"`
	Timeout        time.Duration `conf:"upstream.timeout"` // Per attempt.
	Catalog        string        `conf:"upstream.catalog"` // Optional YAML endpoint catalog.

	BalanceTTL time.Duration `conf:"upstream.balance_ttl"`
	QuoteTTL   time.Duration `conf:"upstream.quote_ttl"`
	PriceTTL   time.Duration `conf:"upstream.price_ttl"`
}

// CacheBackend selects where cached upstream responses live.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Backend       CacheBackend `conf:"cache.backend"`
	Size          int          `conf:"cache.size"` // Entries, memory backend only.
	RedisAddr     string       `conf:"cache.redis_addr"`
	RedisPassword string       `conf:"cache.redis_password"`
	RedisDB       int          `conf:"cache.redis_db"`
}

// TradeConfig points at the remote order book service.
type TradeConfig struct {
	APIURL    string        `conf:"trade.api_url"`
	APIToken  string        `conf:"trade.api_token"`
	Mirror    bool          `conf:"trade.mirror"`     // Keep a local read-only copy of fetched records.
	MirrorTTL time.Duration `conf:"trade.mirror_ttl"` // Zero keeps mirrored records forever.
}

// RateLimitConfig holds per-IP token bucket settings.
type RateLimitConfig struct {
	Enabled bool    `conf:"ratelimit.enabled"`
	RPS     float64 `conf:"ratelimit.rps"`
	Burst   int     `conf:"ratelimit.burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingpay
//	macOS:   ~/Library/Application Support/Klingpay
//	Windows: %APPDATA%\Klingpay
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingpay"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingpay")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingpay")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingpay")
	default:
		return filepath.Join(home, ".klingpay")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// MirrorDir returns the trade mirror database directory.
func (c *Config) MirrorDir() string {
	return filepath.Join(c.NetworkDataDir(), "mirror")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingpay.conf")
}
