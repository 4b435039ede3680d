// Package market serves swap quotes, token prices and portfolio balances
// from third-party HTTP APIs.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/klingpay/internal/cache"
	"github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/upstream"
)

var (
	// ErrNotConfigured is returned when a provider needs an API key that
	// was not configured.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrInvalidRequest is returned for malformed query arguments.
	ErrInvalidRequest = errors.New("invalid market request")

	// ErrPriceUnavailable is returned when no provider knows the token.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Provider names used as TryEndpoints candidates for price lookups.
const (
	ProviderDexScreener = "dexscreener"
	ProviderCoinGecko   = "coingecko"
)

const maxSlippageBps = 5000

// Config configures a Service.
type Config struct {
	Network        string
	JupiterURL     string
	DexScreenerURL string
	CoinGeckoURL   string
	MoralisURL     string
	MoralisKey     string
	Timeout        time.Duration
	QuoteTTL       time.Duration
	PriceTTL       time.Duration
	BalanceTTL     time.Duration
}

// Service fronts the market data providers.
type Service struct {
	cfg   Config
	cache cache.Cache
	http  *upstream.Client
}

// NewService creates a Service. c may be nil to disable caching.
func NewService(cfg Config, c cache.Cache, httpClient *upstream.Client) *Service {
	if httpClient == nil {
		httpClient = upstream.NewClient(nil)
	}
	cfg.JupiterURL = strings.TrimRight(cfg.JupiterURL, "/")
	cfg.DexScreenerURL = strings.TrimRight(cfg.DexScreenerURL, "/")
	cfg.CoinGeckoURL = strings.TrimRight(cfg.CoinGeckoURL, "/")
	cfg.MoralisURL = strings.TrimRight(cfg.MoralisURL, "/")
	return &Service{cfg: cfg, cache: c, http: httpClient}
}

// QuoteRequest asks for a swap route from one mint to another.
type QuoteRequest struct {
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	Amount      uint64 `json:"amount"` // Raw units of the input mint.
	SlippageBps uint16 `json:"slippage_bps"`
}

// Validate checks required fields.
func (r QuoteRequest) Validate() error {
	switch {
	case r.InputMint == "" || r.OutputMint == "":
		return fmt.Errorf("%w: input and output mints are required", ErrInvalidRequest)
	case r.InputMint == r.OutputMint:
		return fmt.Errorf("%w: input and output mints must differ", ErrInvalidRequest)
	case r.Amount == 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case r.SlippageBps > maxSlippageBps:
		return fmt.Errorf("%w: slippage %d bps exceeds %d", ErrInvalidRequest, r.SlippageBps, maxSlippageBps)
	}
	return nil
}

// Quote is a swap quote. Route holds the provider's raw route plan so
// clients can pass it on to a swap builder unchanged.
type Quote struct {
	InputMint      string          `json:"input_mint"`
	OutputMint     string          `json:"output_mint"`
	InAmount       string          `json:"in_amount"`
	OutAmount      string          `json:"out_amount"`
	OtherAmount    string          `json:"other_amount_threshold"`
	SlippageBps    uint16          `json:"slippage_bps"`
	PriceImpactPct string          `json:"price_impact_pct"`
	Route          json.RawMessage `json:"route,omitempty"`
}

// Quote fetches a Jupiter swap quote.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	amount := strconv.FormatUint(req.Amount, 10)
	slippage := strconv.Itoa(int(req.SlippageBps))
	key := cache.Key("quote", req.InputMint, req.OutputMint, amount, slippage)

	return cache.GetOrLoad(ctx, s.cache, key, s.cfg.QuoteTTL, func(ctx context.Context) (*Quote, error) {
		q := url.Values{}
		q.Set("inputMint", req.InputMint)
		q.Set("outputMint", req.OutputMint)
		q.Set("amount", amount)
		q.Set("slippageBps", slippage)
		endpoint := s.cfg.JupiterURL + "/quote?" + q.Encode()

		return upstream.TryEndpoints(ctx, []string{endpoint}, s.cfg.Timeout, func(ctx context.Context, ep string) (*Quote, error) {
			var resp jupiterQuote
			if err := s.http.GetJSON(ctx, ep, nil, &resp); err != nil {
				return nil, err
			}
			if resp.Error != "" {
				return nil, upstream.Permanent(fmt.Errorf("%w: %s", ErrInvalidRequest, resp.Error))
			}
			return &Quote{
				InputMint:      resp.InputMint,
				OutputMint:     resp.OutputMint,
				InAmount:       resp.InAmount,
				OutAmount:      resp.OutAmount,
				OtherAmount:    resp.OtherAmountThreshold,
				SlippageBps:    resp.SlippageBps,
				PriceImpactPct: resp.PriceImpactPct,
				Route:          resp.RoutePlan,
			}, nil
		})
	})
}

// Price is a token's USD price and the provider that answered.
type Price struct {
	Mint      string  `json:"mint"`
	USD       float64 `json:"usd"`
	Source    string  `json:"source"`
	Liquidity float64 `json:"liquidity_usd,omitempty"`
}

// Price looks the token up on DexScreener, then CoinGecko.
func (s *Service) Price(ctx context.Context, mint string) (*Price, error) {
	if mint == "" {
		return nil, fmt.Errorf("%w: mint is required", ErrInvalidRequest)
	}
	key := cache.Key("price", mint)
	return cache.GetOrLoad(ctx, s.cache, key, s.cfg.PriceTTL, func(ctx context.Context) (*Price, error) {
		providers := []string{ProviderDexScreener, ProviderCoinGecko}
		p, err := upstream.TryEndpoints(ctx, providers, s.cfg.Timeout, func(ctx context.Context, provider string) (*Price, error) {
			switch provider {
			case ProviderDexScreener:
				return s.dexScreenerPrice(ctx, mint)
			default:
				return s.coinGeckoPrice(ctx, mint)
			}
		})
		if err != nil {
			var all *upstream.AllFailedError
			if errors.As(err, &all) {
				return nil, fmt.Errorf("%w for %s: %v", ErrPriceUnavailable, mint, err)
			}
			return nil, err
		}
		log.Market.Debug().Str("mint", mint).Str("source", p.Source).Float64("usd", p.USD).Msg("Price resolved")
		return p, nil
	})
}

func (s *Service) dexScreenerPrice(ctx context.Context, mint string) (*Price, error) {
	var resp dexScreenerTokens
	if err := s.http.GetJSON(ctx, s.cfg.DexScreenerURL+"/latest/dex/tokens/"+url.PathEscape(mint), nil, &resp); err != nil {
		return nil, err
	}

	// Pick the most liquid pair where the token is the base asset.
	var best *Price
	for _, pair := range resp.Pairs {
		if pair.BaseToken.Address != mint || pair.PriceUSD == "" {
			continue
		}
		usd, err := strconv.ParseFloat(pair.PriceUSD, 64)
		if err != nil || usd <= 0 {
			continue
		}
		if best == nil || pair.Liquidity.USD > best.Liquidity {
			best = &Price{Mint: mint, USD: usd, Source: ProviderDexScreener, Liquidity: pair.Liquidity.USD}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w on %s", ErrPriceUnavailable, ProviderDexScreener)
	}
	return best, nil
}

func (s *Service) coinGeckoPrice(ctx context.Context, mint string) (*Price, error) {
	q := url.Values{}
	q.Set("contract_addresses", mint)
	q.Set("vs_currencies", "usd")

	var resp map[string]map[string]float64
	if err := s.http.GetJSON(ctx, s.cfg.CoinGeckoURL+"/simple/token_price/solana?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	// CoinGecko lowercases some contract keys.
	for addr, prices := range resp {
		if strings.EqualFold(addr, mint) {
			if usd, ok := prices["usd"]; ok && usd > 0 {
				return &Price{Mint: mint, USD: usd, Source: ProviderCoinGecko}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w on %s", ErrPriceUnavailable, ProviderCoinGecko)
}

// Supported Moralis chains.
var moralisChains = map[string]bool{
	"solana":   true,
	"eth":      true,
	"polygon":  true,
	"bsc":      true,
	"base":     true,
	"arbitrum": true,
}

// ValidMoralisChain reports whether chain is accepted by TokenBalances.
func ValidMoralisChain(chain string) bool {
	return moralisChains[chain]
}

// TokenBalance is one token holding reported by Moralis.
type TokenBalance struct {
	TokenAddress string  `json:"token_address"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Decimals     uint8   `json:"decimals"`
	Balance      string  `json:"balance"` // Raw integer amount.
	UIAmount     string  `json:"ui_amount"`
	USDValue     float64 `json:"usd_value,omitempty"`
	Native       bool    `json:"native,omitempty"`
}

// TokenBalances returns the token holdings of address on chain.
func (s *Service) TokenBalances(ctx context.Context, chain, address string) ([]TokenBalance, error) {
	if s.cfg.MoralisKey == "" {
		return nil, fmt.Errorf("%w: moralis api key", ErrNotConfigured)
	}
	if !ValidMoralisChain(chain) {
		return nil, fmt.Errorf("%w: unsupported chain %q", ErrInvalidRequest, chain)
	}
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}

	key := cache.Key("moralis", s.cfg.Network, chain, address)
	return cache.GetOrLoad(ctx, s.cache, key, s.cfg.BalanceTTL, func(ctx context.Context) ([]TokenBalance, error) {
		header := http.Header{}
		header.Set("X-API-Key", s.cfg.MoralisKey)
		if chain == "solana" {
			return s.solanaPortfolio(ctx, header, address)
		}
		return s.evmBalances(ctx, header, chain, address)
	})
}

func (s *Service) evmBalances(ctx context.Context, header http.Header, chain, address string) ([]TokenBalance, error) {
	endpoint := s.cfg.MoralisURL + "/wallets/" + url.PathEscape(address) + "/tokens?chain=" + url.QueryEscape(chain)
	return upstream.TryEndpoints(ctx, []string{endpoint}, s.cfg.Timeout, func(ctx context.Context, ep string) ([]TokenBalance, error) {
		var resp moralisEVMTokens
		if err := s.http.GetJSON(ctx, ep, header, &resp); err != nil {
			return nil, err
		}
		out := make([]TokenBalance, 0, len(resp.Result))
		for _, t := range resp.Result {
			out = append(out, TokenBalance{
				TokenAddress: t.TokenAddress,
				Symbol:       t.Symbol,
				Name:         t.Name,
				Decimals:     t.Decimals,
				Balance:      t.Balance,
				UIAmount:     t.BalanceFormatted,
				USDValue:     t.USDValue,
				Native:       t.NativeToken,
			})
		}
		return out, nil
	})
}

func (s *Service) solanaPortfolio(ctx context.Context, header http.Header, address string) ([]TokenBalance, error) {
	network := "mainnet"
	if s.cfg.Network == "devnet" {
		network = "devnet"
	}
	endpoint := solanaGatewayURL(s.cfg.MoralisURL) + "/account/" + network + "/" + url.PathEscape(address) + "/portfolio"
	return upstream.TryEndpoints(ctx, []string{endpoint}, s.cfg.Timeout, func(ctx context.Context, ep string) ([]TokenBalance, error) {
		var resp moralisSolanaPortfolio
		if err := s.http.GetJSON(ctx, ep, header, &resp); err != nil {
			return nil, err
		}
		out := make([]TokenBalance, 0, len(resp.Tokens)+1)
		out = append(out, TokenBalance{
			Symbol:   "SOL",
			Name:     "Solana",
			Decimals: 9,
			Balance:  resp.NativeBalance.Lamports,
			UIAmount: resp.NativeBalance.Solana,
			Native:   true,
		})
		for _, t := range resp.Tokens {
			out = append(out, TokenBalance{
				TokenAddress: t.Mint,
				Symbol:       t.Symbol,
				Name:         t.Name,
				Decimals:     t.Decimals,
				Balance:      t.Amount,
				UIAmount:     t.AmountFormatted,
			})
		}
		return out, nil
	})
}

// solanaGatewayURL maps the EVM deep-index base URL to Moralis' Solana
// gateway. Custom base URLs (tests, proxies) are used as-is.
func solanaGatewayURL(base string) string {
	if strings.Contains(base, "deep-index.moralis.io") {
		return "https://solana-gateway.moralis.io"
	}
	return base
}
