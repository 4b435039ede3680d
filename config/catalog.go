package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Catalog is the optional YAML endpoint catalog. Non-empty fields replace
// the corresponding upstream settings.
//
//	networks:
//	  mainnet:
//	    solana_rpc: [https://rpc-a.example, https://rpc-b.example]
//	jupiter_url: https://quote-api.jup.ag/v6
type Catalog struct {
	Networks       map[NetworkType]CatalogNetwork `yaml:"networks"`
	JupiterURL     string                         `yaml:"jupiter_url"`
	DexScreenerURL string                         `yaml:"dexscreener_url"`
	CoinGeckoURL   string                         `yaml:"coingecko_url"`
	MoralisURL     string                         `yaml:"moralis_url"`
	TradeAPIURL    string                         `yaml:"trade_api_url"`
}

// CatalogNetwork holds per-network endpoint lists.
type CatalogNetwork struct {
	SolanaRPC []string `yaml:"solana_rpc"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}

// ApplyCatalog loads cfg.Upstream.Catalog, if set, and merges it into cfg.
// Relative paths are resolved against the data directory.
func ApplyCatalog(cfg *Config) error {
	path := cfg.Upstream.Catalog
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.DataDir, path)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("loading endpoint catalog: %w", err)
	}
	c.apply(cfg)
	return nil
}

func (c *Catalog) apply(cfg *Config) {
	if n, ok := c.Networks[cfg.Network]; ok && len(n.SolanaRPC) > 0 {
		cfg.Upstream.SolanaRPC = append([]string(nil), n.SolanaRPC...)
	}
	if c.JupiterURL != "" {
		cfg.Upstream.JupiterURL = c.JupiterURL
	}
	if c.DexScreenerURL != "" {
		cfg.Upstream.DexScreenerURL = c.DexScreenerURL
	}
	if c.CoinGeckoURL != "" {
		cfg.Upstream.CoinGeckoURL = c.CoinGeckoURL
	}
	if c.MoralisURL != "" {
		cfg.Upstream.MoralisURL = c.MoralisURL
	}
	if c.TradeAPIURL != "" {
		cfg.Trade.APIURL = c.TradeAPIURL
	}
}
