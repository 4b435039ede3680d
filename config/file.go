package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		values[key] = unquote(strings.TrimSpace(parts[1]))
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// configKeys lists every key setConfigValue understands, in file order.
var configKeys = []string{
	"network", "datadir",
	"rpc.enabled", "rpc.addr", "rpc.port", "rpc.allowed", "rpc.cors",
	"wallet.enabled", "wallet.kdf_memory", "wallet.kdf_iterations", "wallet.kdf_threads",
	"upstream.solana_rpc", "upstream.helius_key", "upstream.moralis_url", "upstream.moralis_key",
	"upstream.jupiter_url", "upstream.dexscreener_url", "upstream.coingecko_url",
	"upstream.timeout", "upstream.catalog",
	"upstream.balance_ttl", "upstream.quote_ttl", "upstream.price_ttl",
	"cache.backend", "cache.size", "cache.redis_addr", "cache.redis_password", "cache.redis_db",
	"trade.api_url", "trade.api_token", "trade.mirror", "trade.mirror_ttl",
	"ratelimit.enabled", "ratelimit.rps", "ratelimit.burst",
	"log.level", "log.file", "log.json",
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Wallet
	case "wallet.enabled", "wallet":
		cfg.Wallet.Enabled = parseBool(value)
	case "wallet.kdf_memory":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Wallet.KDFMemory = uint32(n)
	case "wallet.kdf_iterations":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Wallet.KDFIterations = uint32(n)
	case "wallet.kdf_threads":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return err
		}
		cfg.Wallet.KDFThreads = uint8(n)

	// Upstream
	case "upstream.solana_rpc":
		cfg.Upstream.SolanaRPC = parseStringList(value)
	case "upstream.helius_key":
		cfg.Upstream.HeliusKey = value
	case "upstream.moralis_url":
		cfg.Upstream.MoralisURL = value
	case "upstream.moralis_key":
		cfg.Upstream.MoralisKey = value
	case "upstream.jupiter_url":
		cfg.Upstream.JupiterURL = value
	case "upstream.dexscreener_url":
		cfg.Upstream.DexScreenerURL = value
	case "upstream.coingecko_url":
		cfg.Upstream.CoinGeckoURL = value
	case "upstream.catalog":
		cfg.Upstream.Catalog = value
	case "upstream.timeout":
		return parseDurationInto(&cfg.Upstream.Timeout, value)
	case "upstream.balance_ttl":
		return parseDurationInto(&cfg.Upstream.BalanceTTL, value)
	case "upstream.quote_ttl":
		return parseDurationInto(&cfg.Upstream.QuoteTTL, value)
	case "upstream.price_ttl":
		return parseDurationInto(&cfg.Upstream.PriceTTL, value)

	// Cache
	case "cache.backend":
		cfg.Cache.Backend = CacheBackend(strings.ToLower(value))
	case "cache.size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Cache.Size = n
	case "cache.redis_addr":
		cfg.Cache.RedisAddr = value
	case "cache.redis_password":
		cfg.Cache.RedisPassword = value
	case "cache.redis_db":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Cache.RedisDB = n

	// Trade
	case "trade.api_url":
		cfg.Trade.APIURL = strings.TrimRight(value, "/")
	case "trade.api_token":
		cfg.Trade.APIToken = value
	case "trade.mirror":
		cfg.Trade.Mirror = parseBool(value)
	case "trade.mirror_ttl":
		return parseDurationInto(&cfg.Trade.MirrorTTL, value)

	// Rate limiting
	case "ratelimit.enabled":
		cfg.RateLimit.Enabled = parseBool(value)
	case "ratelimit.rps":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.RateLimit.RPS = f
	case "ratelimit.burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RateLimit.Burst = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseDurationInto accepts Go duration syntax ("15s") or bare seconds ("15").
func parseDurationInto(dst *time.Duration, s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	content := `# klingpay node configuration
#
# Precedence: built-in defaults < this file < KLINGPAY_* env < flags.
# Every key can also be set from the environment, e.g.
#   upstream.helius_key -> KLINGPAY_UPSTREAM_HELIUS_KEY

# Network: mainnet or devnet
network = ` + string(network) + `

# Data directory (default: ~/.klingpay)
# datadir = ~/.klingpay

# ============================================================================
# RPC / REST Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(cfg.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Wallet
# ============================================================================

wallet.enabled = true
# Argon2id cost for new keystores (KiB, passes, threads)
# wallet.kdf_memory = 65536
# wallet.kdf_iterations = 3
# wallet.kdf_threads = 4

# ============================================================================
# Upstream Services
# ============================================================================

# Solana RPC endpoints, tried in order (comma-separated)
upstream.solana_rpc = ` + strings.Join(cfg.Upstream.SolanaRPC, ",") + `
# upstream.helius_key =
# upstream.moralis_key =
# upstream.jupiter_url = ` + DefaultJupiterURL + `
# upstream.dexscreener_url = ` + DefaultDexScreenerURL + `
# upstream.coingecko_url = ` + DefaultCoinGeckoURL + `

# Per-attempt timeout and cache lifetimes
upstream.timeout = 8s
# upstream.balance_ttl = 15s
# upstream.quote_ttl = 10s
# upstream.price_ttl = 60s

# Optional YAML file replacing the endpoint lists
# upstream.catalog = endpoints.yaml

# ============================================================================
# Cache
# ============================================================================

# memory or redis
cache.backend = memory
cache.size = 4096
# cache.redis_addr = 127.0.0.1:6379
# cache.redis_password =
# cache.redis_db = 0

# ============================================================================
# P2P Trading
# ============================================================================

# trade.api_url = https://p2p.example.com/api
# trade.api_token =
trade.mirror = true
trade.mirror_ttl = 168h

# ============================================================================
# Rate Limiting
# ============================================================================

ratelimit.enabled = true
ratelimit.rps = 20
ratelimit.burst = 40

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
