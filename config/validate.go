package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Devnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Devnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}

	// Same bounds the keystore enforces on sealed headers.
	w := cfg.Wallet
	if w.KDFThreads == 0 || w.KDFIterations == 0 || w.KDFIterations > 64 ||
		w.KDFMemory < 8*uint32(w.KDFThreads) || w.KDFMemory > 4*1024*1024 {
		return fmt.Errorf("wallet.kdf_*: threads and iterations (max 64) must be positive, kdf_memory between 8*kdf_threads and 4194304 KiB")
	}

	if len(cfg.Upstream.SolanaRPC) == 0 && cfg.Upstream.HeliusKey == "" {
		return fmt.Errorf("upstream.solana_rpc needs at least one endpoint or a helius key")
	}
	for i, u := range cfg.Upstream.SolanaRPC {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("upstream.solana_rpc[%d]: %w", i, err)
		}
	}
	for field, u := range map[string]string{
		"upstream.jupiter_url":     cfg.Upstream.JupiterURL,
		"upstream.dexscreener_url": cfg.Upstream.DexScreenerURL,
		"upstream.coingecko_url":   cfg.Upstream.CoinGeckoURL,
		"upstream.moralis_url":     cfg.Upstream.MoralisURL,
	} {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if cfg.Trade.APIURL != "" {
		if err := validateURL(cfg.Trade.APIURL); err != nil {
			return fmt.Errorf("trade.api_url: %w", err)
		}
	}
	if cfg.Trade.MirrorTTL < 0 {
		return fmt.Errorf("trade.mirror_ttl must not be negative")
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.Upstream.BalanceTTL < 0 || cfg.Upstream.QuoteTTL < 0 || cfg.Upstream.PriceTTL < 0 {
		return fmt.Errorf("upstream cache TTLs must not be negative")
	}

	switch cfg.Cache.Backend {
	case CacheMemory:
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive")
		}
	case CacheRedis:
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache.backend=redis requires cache.redis_addr")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis")
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive when enabled")
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
