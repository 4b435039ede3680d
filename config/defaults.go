package config

import "time"

// Public endpoints used when nothing else is configured.
const (
	DefaultJupiterURL     = "https://quote-api.jup.ag/v6"
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"
	DefaultMoralisURL     = "https://deep-index.moralis.io/api/v2.2"

	// HeliusMainnetURL is appended to the Solana RPC list when a key is set.
	HeliusMainnetURL = "https://mainnet.helius-rpc.com/?api-key="
	HeliusDevnetURL  = "https://devnet.helius-rpc.com/?api-key="
)

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       7545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Wallet: WalletConfig{
			Enabled:       true,
			KDFMemory:     64 * 1024,
			KDFIterations: 3,
			KDFThreads:    4,
		},
		Upstream: UpstreamConfig{
			SolanaRPC:      []string{"https://api.mainnet-beta.solana.com"},
			MoralisURL:     DefaultMoralisURL,
			JupiterURL:     DefaultJupiterURL,
			DexScreenerURL: DefaultDexScreenerURL,
			CoinGeckoURL:   DefaultCoinGeckoURL,
			Timeout:        8 * time.Second,
			BalanceTTL:     15 * time.Second,
			QuoteTTL:       10 * time.Second,
			PriceTTL:       60 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Size:    4096,
		},
		Trade: TradeConfig{
			Mirror:    true,
			MirrorTTL: 7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDevnet returns the default node configuration for devnet.
func DefaultDevnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Devnet
	cfg.RPC.Port = 7645
	cfg.Upstream.SolanaRPC = []string{"https://api.devnet.solana.com"}
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Devnet:
		return DefaultDevnet()
	default:
		return DefaultMainnet()
	}
}

// HeliusURL returns the Helius RPC endpoint for the network, or "" when no
// key is configured.
func (c *Config) HeliusURL() string {
	if c.Upstream.HeliusKey == "" {
		return ""
	}
	if c.Network == Devnet {
		return HeliusDevnetURL + c.Upstream.HeliusKey
	}
	return HeliusMainnetURL + c.Upstream.HeliusKey
}

// SolanaEndpoints returns the ordered Solana RPC candidates: the configured
// list followed by Helius when a key is set.
func (c *Config) SolanaEndpoints() []string {
	out := make([]string, 0, len(c.Upstream.SolanaRPC)+1)
	out = append(out, c.Upstream.SolanaRPC...)
	if h := c.HeliusURL(); h != "" {
		out = append(out, h)
	}
	return out
}
