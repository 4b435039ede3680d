package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingpay/internal/cache"
	"github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/upstream"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

var (
	// ErrInvalidAddress is returned for strings that are not base58 ed25519
	// public keys.
	ErrInvalidAddress = errors.New("invalid solana address")

	// ErrMethodNotAllowed is returned by Forward for methods outside the
	// allow-list.
	ErrMethodNotAllowed = errors.New("rpc method not allowed")

	// ErrBadRequest is returned by Forward for malformed payloads.
	ErrBadRequest = errors.New("malformed json-rpc request")
)

// allowedMethods are the methods Forward passes through. Everything is a
// read except sendTransaction.
var allowedMethods = map[string]bool{
	"getAccountInfo":                    true,
	"getBalance":                        true,
	"getBlockHeight":                    true,
	"getEpochInfo":                      true,
	"getFeeForMessage":                  true,
	"getHealth":                         true,
	"getLatestBlockhash":                true,
	"getMinimumBalanceForRentExemption": true,
	"getMultipleAccounts":               true,
	"getRecentPrioritizationFees":       true,
	"getSignatureStatuses":              true,
	"getSignaturesForAddress":           true,
	"getSlot":                           true,
	"getTokenAccountBalance":            true,
	"getTokenAccountsByOwner":           true,
	"getTokenSupply":                    true,
	"getTransaction":                    true,
	"getVersion":                        true,
	"isBlockhashValid":                  true,
	"simulateTransaction":               true,
	"sendTransaction":                   true,
}

// maxForwardBatch bounds the number of calls in one forwarded batch.
const maxForwardBatch = 20

// Options configures a Proxy.
type Options struct {
	Network    string   // Cache key namespace, e.g. "mainnet".
	Endpoints  []string // Tried in order.
	Timeout    time.Duration
	BalanceTTL time.Duration
	Cache      cache.Cache
	HTTP       *upstream.Client
}

// Proxy talks to Solana RPC endpoints.
type Proxy struct {
	network    string
	endpoints  []string
	timeout    time.Duration
	balanceTTL time.Duration
	cache      cache.Cache
	http       *upstream.Client
}

// NewProxy creates a Proxy. The endpoint list is copied.
func NewProxy(opts Options) *Proxy {
	if opts.HTTP == nil {
		opts.HTTP = upstream.NewClient(nil)
	}
	return &Proxy{
		network:    opts.Network,
		endpoints:  append([]string(nil), opts.Endpoints...),
		timeout:    opts.Timeout,
		balanceTTL: opts.BalanceTTL,
		cache:      opts.Cache,
		http:       opts.HTTP,
	}
}

// EndpointCount returns the number of configured endpoints.
func (p *Proxy) EndpointCount() int {
	return len(p.endpoints)
}

// ValidateAddress checks that addr is a base58 ed25519 public key.
func ValidateAddress(addr string) error {
	if _, err := wallet.ParseSolanaAddress(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// Balance returns the SOL balance of address.
func (p *Proxy) Balance(ctx context.Context, address string) (*Balance, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	key := cache.Key("sol-balance", p.network, address)
	return cache.GetOrLoad(ctx, p.cache, key, p.balanceTTL, func(ctx context.Context) (*Balance, error) {
		var res balanceResult
		if err := p.call(ctx, "getBalance", []any{address, map[string]string{"commitment": "confirmed"}}, &res); err != nil {
			return nil, err
		}
		return &Balance{
			Address:  address,
			Lamports: res.Value,
			SOL:      FormatLamports(res.Value),
			Slot:     res.Context.Slot,
		}, nil
	})
}

// TokenAccounts returns the SPL token accounts owned by address across the
// Token and Token-2022 programs.
func (p *Proxy) TokenAccounts(ctx context.Context, address string) ([]TokenAccount, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	key := cache.Key("sol-tokens", p.network, address)
	return cache.GetOrLoad(ctx, p.cache, key, p.balanceTTL, func(ctx context.Context) ([]TokenAccount, error) {
		out := make([]TokenAccount, 0)
		for _, program := range []string{TokenProgramID, Token2022ProgramID} {
			var res tokenAccountsResult
			params := []any{
				address,
				map[string]string{"programId": program},
				map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
			}
			if err := p.call(ctx, "getTokenAccountsByOwner", params, &res); err != nil {
				return nil, err
			}
			for _, v := range res.Value {
				info := v.Account.Data.Parsed.Info
				out = append(out, TokenAccount{
					Pubkey:   v.Pubkey,
					Mint:     info.Mint,
					Owner:    info.Owner,
					Amount:   info.TokenAmount.Amount,
					Decimals: info.TokenAmount.Decimals,
					UIAmount: info.TokenAmount.UIAmountString,
					Program:  program,
				})
			}
		}
		return out, nil
	})
}

// Forward validates a JSON-RPC request or batch against the allow-list,
// re-encodes it and returns the first endpoint's raw response.
func (p *Proxy) Forward(ctx context.Context, payload []byte) ([]byte, error) {
	body, methods, err := canonicalRequest(payload)
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if !allowedMethods[m] {
			return nil, fmt.Errorf("%w: %q", ErrMethodNotAllowed, m)
		}
	}
	log.Upstream.Debug().Strs("methods", methods).Msg("Forwarding solana rpc")

	return upstream.TryEndpoints(ctx, p.endpoints, p.timeout, func(ctx context.Context, ep string) ([]byte, error) {
		return p.http.PostRaw(ctx, ep, nil, body)
	})
}

// IsAllowedMethod reports whether Forward accepts method.
func IsAllowedMethod(method string) bool {
	return allowedMethods[method]
}

func (p *Proxy) call(ctx context.Context, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	_, err := upstream.TryEndpoints(ctx, p.endpoints, p.timeout, func(ctx context.Context, ep string) (struct{}, error) {
		var resp rpcResponse
		if err := p.http.PostJSON(ctx, ep, nil, req, &resp); err != nil {
			return struct{}{}, err
		}
		if resp.Error != nil {
			// Parameter errors would fail identically on every node.
			if resp.Error.Code == -32602 || resp.Error.Code == -32600 {
				return struct{}{}, upstream.Permanent(resp.Error)
			}
			return struct{}{}, resp.Error
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return struct{}{}, fmt.Errorf("decode %s result: %w", method, err)
		}
		return struct{}{}, nil
	})
	return err
}

// forwardCall is the canonical form of a forwarded JSON-RPC call. Only these
// fields reach the upstream node.
type forwardCall struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// parseCall decodes one call with exact, case-sensitive keys. encoding/json
// would otherwise match "Method" or "METHOD" onto the method field.
func parseCall(raw json.RawMessage) (forwardCall, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return forwardCall{}, fmt.Errorf("%w: call must be an object", ErrBadRequest)
	}
	var c forwardCall
	for k, v := range fields {
		switch k {
		case "jsonrpc":
			if err := json.Unmarshal(v, &c.JSONRPC); err != nil {
				return forwardCall{}, fmt.Errorf("%w: jsonrpc must be a string", ErrBadRequest)
			}
		case "method":
			if err := json.Unmarshal(v, &c.Method); err != nil {
				return forwardCall{}, fmt.Errorf("%w: method must be a string", ErrBadRequest)
			}
		case "id":
			c.ID = v
		case "params":
			t := bytes.TrimSpace(v)
			if string(t) == "null" {
				continue
			}
			if len(t) == 0 || (t[0] != '[' && t[0] != '{') {
				return forwardCall{}, fmt.Errorf("%w: params must be an array or object", ErrBadRequest)
			}
			c.Params = v
		default:
			return forwardCall{}, fmt.Errorf("%w: unexpected field %q", ErrBadRequest, k)
		}
	}
	if c.JSONRPC != "2.0" || c.Method == "" {
		return forwardCall{}, fmt.Errorf("%w: jsonrpc must be 2.0 with a method", ErrBadRequest)
	}
	return c, nil
}

// canonicalRequest validates a single call or batch and re-encodes it from
// the parsed fields, so the upstream sees exactly what was checked.
func canonicalRequest(payload []byte) ([]byte, []string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil, ErrBadRequest
	}

	batch := trimmed[0] == '['
	var raws []json.RawMessage
	if batch {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if len(raws) == 0 || len(raws) > maxForwardBatch {
			return nil, nil, fmt.Errorf("%w: batch must hold 1-%d calls", ErrBadRequest, maxForwardBatch)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	calls := make([]forwardCall, 0, len(raws))
	methods := make([]string, 0, len(raws))
	for _, raw := range raws {
		c, err := parseCall(raw)
		if err != nil {
			return nil, nil, err
		}
		calls = append(calls, c)
		methods = append(methods, c.Method)
	}

	var (
		out []byte
		err error
	)
	if batch {
		out, err = json.Marshal(calls)
	} else {
		out, err = json.Marshal(calls[0])
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return out, methods, nil
}
