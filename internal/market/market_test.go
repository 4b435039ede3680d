package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Klingon-tech/klingpay/internal/cache"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solMint  = "So11111111111111111111111111111111111111112"
)

type provider struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Pointer[http.Request]
}

func newProvider(t *testing.T, status int, body string) *provider {
	t.Helper()
	p := &provider{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		p.last.Store(r.Clone(context.Background()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func testConfig() Config {
	return Config{
		Network:    "mainnet",
		Timeout:    2 * time.Second,
		QuoteTTL:   time.Minute,
		PriceTTL:   time.Minute,
		BalanceTTL: time.Minute,
	}
}

func TestQuoteRequest_Validate(t *testing.T) {
	valid := QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1000, SlippageBps: 50}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tests := []struct {
		name string
		mod  func(*QuoteRequest)
	}{
		{"missing input", func(r *QuoteRequest) { r.InputMint = "" }},
		{"missing output", func(r *QuoteRequest) { r.OutputMint = "" }},
		{"same mint", func(r *QuoteRequest) { r.OutputMint = r.InputMint }},
		{"zero amount", func(r *QuoteRequest) { r.Amount = 0 }},
		{"slippage too high", func(r *QuoteRequest) { r.SlippageBps = 5001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mod(&req)
			if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	jup := newProvider(t, http.StatusOK, `{
		"inputMint":"`+solMint+`","outputMint":"`+usdcMint+`",
		"inAmount":"1000000000","outAmount":"151230000","otherAmountThreshold":"150473850",
		"slippageBps":50,"priceImpactPct":"0.0001","routePlan":[{"percent":100}]}`)
	cfg := testConfig()
	cfg.JupiterURL = jup.srv.URL + "/"
	s := NewService(cfg, cache.NewMemory(16, time.Minute), nil)

	req := QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1_000_000_000, SlippageBps: 50}
	q, err := s.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if q.OutAmount != "151230000" || q.OtherAmount != "150473850" || q.SlippageBps != 50 {
		t.Errorf("Quote() = %+v", q)
	}
	if string(q.Route) != `[{"percent":100}]` {
		t.Errorf("route = %s", q.Route)
	}

	r := jup.last.Load()
	if r.URL.Path != "/quote" {
		t.Errorf("path = %q, want /quote", r.URL.Path)
	}
	if got := r.URL.Query().Get("amount"); got != "1000000000" {
		t.Errorf("amount param = %q", got)
	}
	if got := r.URL.Query().Get("inputMint"); got != solMint {
		t.Errorf("inputMint param = %q", got)
	}

	// Second call is served from cache.
	if _, err := s.Quote(context.Background(), req); err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if jup.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", jup.calls.Load())
	}
}

func TestQuote_UpstreamError(t *testing.T) {
	jup := newProvider(t, http.StatusBadRequest, `{"error":"Could not find any route"}`)
	cfg := testConfig()
	cfg.JupiterURL = jup.srv.URL
	s := NewService(cfg, nil, nil)

	_, err := s.Quote(context.Background(), QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1})
	if err == nil {
		t.Fatal("Quote() should fail on HTTP 400")
	}
}

func TestPrice_DexScreener(t *testing.T) {
	dex := newProvider(t, http.StatusOK, `{"pairs":[
		{"chainId":"solana","baseToken":{"address":"`+solMint+`"},"priceUsd":"150.10","liquidity":{"usd":1000}},
		{"chainId":"solana","baseToken":{"address":"`+solMint+`"},"priceUsd":"151.25","liquidity":{"usd":90000}},
		{"chainId":"solana","baseToken":{"address":"other"},"priceUsd":"1.00","liquidity":{"usd":999999}}]}`)
	gecko := newProvider(t, http.StatusOK, `{}`)
	cfg := testConfig()
	cfg.DexScreenerURL = dex.srv.URL
	cfg.CoinGeckoURL = gecko.srv.URL
	s := NewService(cfg, nil, nil)

	p, err := s.Price(context.Background(), solMint)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if p.USD != 151.25 || p.Source != ProviderDexScreener {
		t.Errorf("Price() = %+v, want 151.25 from dexscreener", p)
	}
	if gecko.calls.Load() != 0 {
		t.Error("coingecko should not be queried when dexscreener answers")
	}
	if got := dex.last.Load().URL.Path; got != "/latest/dex/tokens/"+solMint {
		t.Errorf("dexscreener path = %q", got)
	}
}

func TestPrice_FallsBackToCoinGecko(t *testing.T) {
	dex := newProvider(t, http.StatusOK, `{"pairs":null}`)
	gecko := newProvider(t, http.StatusOK, `{"`+usdcMint+`":{"usd":0.9998}}`)
	cfg := testConfig()
	cfg.DexScreenerURL = dex.srv.URL
	cfg.CoinGeckoURL = gecko.srv.URL
	s := NewService(cfg, nil, nil)

	p, err := s.Price(context.Background(), usdcMint)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if p.USD != 0.9998 || p.Source != ProviderCoinGecko {
		t.Errorf("Price() = %+v, want 0.9998 from coingecko", p)
	}
	r := gecko.last.Load()
	if r.URL.Path != "/simple/token_price/solana" {
		t.Errorf("coingecko path = %q", r.URL.Path)
	}
	if got := r.URL.Query().Get("contract_addresses"); got != usdcMint {
		t.Errorf("contract_addresses = %q", got)
	}
}

func TestPrice_Unavailable(t *testing.T) {
	dex := newProvider(t, http.StatusInternalServerError, `boom`)
	gecko := newProvider(t, http.StatusOK, `{}`)
	cfg := testConfig()
	cfg.DexScreenerURL = dex.srv.URL
	cfg.CoinGeckoURL = gecko.srv.URL
	s := NewService(cfg, nil, nil)

	_, err := s.Price(context.Background(), usdcMint)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("Price() error = %v, want ErrPriceUnavailable", err)
	}
}

func TestPrice_Cached(t *testing.T) {
	dex := newProvider(t, http.StatusOK, `{"pairs":[{"baseToken":{"address":"`+solMint+`"},"priceUsd":"150","liquidity":{"usd":1}}]}`)
	cfg := testConfig()
	cfg.DexScreenerURL = dex.srv.URL
	s := NewService(cfg, cache.NewMemory(16, time.Minute), nil)

	for i := 0; i < 3; i++ {
		if _, err := s.Price(context.Background(), solMint); err != nil {
			t.Fatalf("Price() error: %v", err)
		}
	}
	if dex.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", dex.calls.Load())
	}
}

func TestPrice_EmptyMint(t *testing.T) {
	s := NewService(testConfig(), nil, nil)
	if _, err := s.Price(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Price(\"\") error = %v, want ErrInvalidRequest", err)
	}
}

func TestTokenBalances_NotConfigured(t *testing.T) {
	s := NewService(testConfig(), nil, nil)
	_, err := s.TokenBalances(context.Background(), "eth", "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TokenBalances() error = %v, want ErrNotConfigured", err)
	}
}

func TestTokenBalances_EVM(t *testing.T) {
	const addr = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	mor := newProvider(t, http.StatusOK, `{"result":[
		{"token_address":"0xeeee","symbol":"ETH","name":"Ether","decimals":18,"balance":"1000000000000000000","balance_formatted":"1","usd_value":2500.5,"native_token":true},
		{"token_address":"0xa0b8","symbol":"USDC","name":"USD Coin","decimals":6,"balance":"2500000","balance_formatted":"2.5","usd_value":2.5}]}`)
	cfg := testConfig()
	cfg.MoralisURL = mor.srv.URL
	cfg.MoralisKey = "secret-key"
	s := NewService(cfg, nil, nil)

	got, err := s.TokenBalances(context.Background(), "eth", addr)
	if err != nil {
		t.Fatalf("TokenBalances() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("balances = %d, want 2", len(got))
	}
	if !got[0].Native || got[0].USDValue != 2500.5 || got[1].Symbol != "USDC" || got[1].UIAmount != "2.5" {
		t.Errorf("balances = %+v", got)
	}

	r := mor.last.Load()
	if r.Header.Get("X-API-Key") != "secret-key" {
		t.Error("X-API-Key header missing")
	}
	if r.URL.Path != "/wallets/"+addr+"/tokens" || r.URL.Query().Get("chain") != "eth" {
		t.Errorf("request = %s", r.URL)
	}
}

func TestTokenBalances_Solana(t *testing.T) {
	const owner = "11111111111111111111111111111111"
	mor := newProvider(t, http.StatusOK, `{
		"nativeBalance":{"lamports":"2500000000","solana":"2.5"},
		"tokens":[{"mint":"`+usdcMint+`","symbol":"USDC","name":"USD Coin","decimals":6,"amountRaw":"1000000","amount":"1"}]}`)
	cfg := testConfig()
	cfg.MoralisURL = mor.srv.URL
	cfg.MoralisKey = "k"
	s := NewService(cfg, nil, nil)

	got, err := s.TokenBalances(context.Background(), "solana", owner)
	if err != nil {
		t.Fatalf("TokenBalances() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("balances = %d, want 2", len(got))
	}
	if !got[0].Native || got[0].Balance != "2500000000" || got[0].Symbol != "SOL" {
		t.Errorf("native = %+v", got[0])
	}
	if got[1].TokenAddress != usdcMint || got[1].Balance != "1000000" {
		t.Errorf("token = %+v", got[1])
	}
	if want := "/account/mainnet/" + owner + "/portfolio"; mor.last.Load().URL.Path != want {
		t.Errorf("path = %q, want %q", mor.last.Load().URL.Path, want)
	}
}

func TestTokenBalances_InvalidArgs(t *testing.T) {
	cfg := testConfig()
	cfg.MoralisKey = "k"
	s := NewService(cfg, nil, nil)

	if _, err := s.TokenBalances(context.Background(), "dogechain", "0x1"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unsupported chain error = %v, want ErrInvalidRequest", err)
	}
	if _, err := s.TokenBalances(context.Background(), "eth", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty address error = %v, want ErrInvalidRequest", err)
	}
}

func TestSolanaGatewayURL(t *testing.T) {
	if got := solanaGatewayURL("https://deep-index.moralis.io/api/v2.2"); got != "https://solana-gateway.moralis.io" {
		t.Errorf("solanaGatewayURL() = %q", got)
	}
	if got := solanaGatewayURL("http://127.0.0.1:9999"); got != "http://127.0.0.1:9999" {
		t.Errorf("solanaGatewayURL() = %q", got)
	}
}
