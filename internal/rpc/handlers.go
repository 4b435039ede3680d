package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/chainrpc"
	"github.com/Klingon-tech/klingpay/internal/market"
	"github.com/Klingon-tech/klingpay/internal/trade"
	"github.com/Klingon-tech/klingpay/internal/upstream"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

// serviceError maps a service error to a JSON-RPC error.
func serviceError(err error) *Error {
	switch {
	case errors.Is(err, chainrpc.ErrInvalidAddress),
		errors.Is(err, chainrpc.ErrMethodNotAllowed),
		errors.Is(err, chainrpc.ErrBadRequest),
		errors.Is(err, market.ErrInvalidRequest),
		errors.Is(err, trade.ErrInvalidRecord):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, trade.ErrNotFound),
		errors.Is(err, market.ErrPriceUnavailable):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, market.ErrNotConfigured),
		errors.Is(err, trade.ErrNotConfigured),
		errors.Is(err, upstream.ErrNoEndpoints):
		return &Error{Code: CodeUnavailable, Message: err.Error()}
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, upstream.ErrAllEndpointsFailed),
		errors.Is(err, upstream.ErrResponseTooLarge):
		return &Error{Code: CodeUpstream, Message: err.Error()}
	}
	var se *upstream.StatusError
	var re *chainrpc.RPCError
	if errors.As(err, &se) || errors.As(err, &re) {
		return &Error{Code: CodeUpstream, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func disabled(feature string) *Error {
	return &Error{Code: CodeUnavailable, Message: feature + " not enabled"}
}

// ── Node ────────────────────────────────────────────────────────────────

func (s *Server) handleNodeGetInfo(_ context.Context, _ *Request) (interface{}, *Error) {
	info := &NodeInfoResult{
		Version:       config.Version,
		Network:       string(s.network),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Wallet:        s.keystore != nil,
		Market:        s.market != nil,
		Trade:         s.trade != nil && s.trade.Configured(),
	}
	if s.solana != nil {
		info.SolanaEndpoints = s.solana.EndpointCount()
	}
	return info, nil
}

// ── Mnemonic / keys ─────────────────────────────────────────────────────

func (s *Server) handleMnemonicGenerate(_ context.Context, req *Request) (interface{}, *Error) {
	var params MnemonicGenerateParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if params.Words == 0 {
		params.Words = 24
	}
	mnemonic, err := wallet.GenerateMnemonic(params.Words)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidMnemonic) {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("generate mnemonic: %v", err)}
	}
	return &MnemonicResult{Mnemonic: mnemonic, Words: params.Words}, nil
}

func (s *Server) handleMnemonicValidate(_ context.Context, req *Request) (interface{}, *Error) {
	var params MnemonicParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	normalized, err := wallet.AssertValidMnemonic(params.Mnemonic)
	if err != nil {
		return &MnemonicValidateResult{
			Valid:      false,
			Normalized: wallet.NormalizeMnemonicInput(params.Mnemonic),
			Reason:     err.Error(),
		}, nil
	}
	return &MnemonicValidateResult{Valid: true, Normalized: normalized}, nil
}

func (s *Server) handleKeyDerive(_ context.Context, req *Request) (interface{}, *Error) {
	var params KeyDeriveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	chain, rpcErr := parseChain(params.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Path == "" {
		params.Path = wallet.SolanaPath(0).String()
		if chain == wallet.ChainEVM {
			params.Path = wallet.EVMPath(0).String()
		}
	}
	path, err := wallet.ParsePath(params.Path)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	seed, err := wallet.SeedFromMnemonic(params.Mnemonic, params.Passphrase)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	defer zero(seed)

	result := &KeyDeriveResult{Chain: string(chain), Path: path.String()}
	switch chain {
	case wallet.ChainEVM:
		key, err := wallet.DeriveSecp256k1Path(params.Path, seed)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive key: %v", err)}
		}
		result.PublicKey = hex.EncodeToString(key.PublicKeyBytes())
		result.Address = key.Address()
	default:
		master := wallet.NewMasterKey(seed)
		defer master.Wipe()
		key := master.DerivePath(path)
		defer key.Wipe()
		result.PublicKey = hex.EncodeToString(key.PublicKey())
		result.Address = key.Address()
	}
	return result, nil
}

// parseChain defaults an empty chain to solana.
func parseChain(name string) (wallet.Chain, *Error) {
	if name == "" {
		return wallet.ChainSolana, nil
	}
	c := wallet.Chain(name)
	if !c.Valid() {
		return "", &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unsupported chain %q", name)}
	}
	return c, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ── Solana ──────────────────────────────────────────────────────────────

func (s *Server) handleSolanaGetBalance(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.solana == nil {
		return nil, disabled("solana proxy")
	}
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	bal, err := s.solana.Balance(ctx, params.Address)
	if err != nil {
		return nil, serviceError(err)
	}
	return bal, nil
}

func (s *Server) handleSolanaGetTokenAccounts(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.solana == nil {
		return nil, disabled("solana proxy")
	}
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	accounts, err := s.solana.TokenAccounts(ctx, params.Address)
	if err != nil {
		return nil, serviceError(err)
	}
	return &TokenAccountsResult{Address: params.Address, Accounts: accounts}, nil
}

// ── Market ──────────────────────────────────────────────────────────────

func (s *Server) handleMarketGetQuote(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.market == nil {
		return nil, disabled("market service")
	}
	var params market.QuoteRequest
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	q, err := s.market.Quote(ctx, params)
	if err != nil {
		return nil, serviceError(err)
	}
	return q, nil
}

func (s *Server) handleMarketGetPrice(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.market == nil {
		return nil, disabled("market service")
	}
	var params MintParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	p, err := s.market.Price(ctx, params.Mint)
	if err != nil {
		return nil, serviceError(err)
	}
	return p, nil
}

func (s *Server) handleMarketGetTokenBalances(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.market == nil {
		return nil, disabled("market service")
	}
	var params TokenBalancesParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	tokens, err := s.market.TokenBalances(ctx, params.Chain, params.Address)
	if err != nil {
		return nil, serviceError(err)
	}
	return &TokenBalancesResult{Chain: params.Chain, Address: params.Address, Tokens: tokens}, nil
}

// ── Trade ───────────────────────────────────────────────────────────────

func (s *Server) requireTrade() *Error {
	if s.trade == nil {
		return disabled("trade client")
	}
	return nil
}

func (s *Server) handleTradeListOrders(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var filter trade.OrderFilter
	if err := parseOptionalParams(req, &filter); err != nil {
		return nil, err
	}
	page, err := s.trade.ListOrders(ctx, filter)
	if err != nil {
		return nil, serviceError(err)
	}
	return page, nil
}

func (s *Server) handleTradeGetOrder(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	o, err := s.trade.GetOrder(ctx, params.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	return o, nil
}

func (s *Server) handleTradeCreateOrder(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params trade.NewOrder
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	o, err := s.trade.CreateOrder(ctx, params)
	if err != nil {
		return nil, serviceError(err)
	}
	return o, nil
}

func (s *Server) handleTradeCancelOrder(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	o, err := s.trade.CancelOrder(ctx, params.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	return o, nil
}

func (s *Server) handleTradeOpenEscrow(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params OpenEscrowParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	e, err := s.trade.OpenEscrow(ctx, params.OrderID, trade.EscrowRequest{Buyer: params.Buyer, Amount: params.Amount})
	if err != nil {
		return nil, serviceError(err)
	}
	return e, nil
}

func (s *Server) handleTradeGetEscrow(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	e, err := s.trade.GetEscrow(ctx, params.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	return e, nil
}

func (s *Server) handleTradeReleaseEscrow(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params ReleaseEscrowParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	e, err := s.trade.ReleaseEscrow(ctx, params.ID, params.TxSignature)
	if err != nil {
		return nil, serviceError(err)
	}
	return e, nil
}

func (s *Server) handleTradeOpenDispute(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params OpenDisputeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	d, err := s.trade.OpenDispute(ctx, params.EscrowID, trade.DisputeRequest{Opener: params.Opener, Reason: params.Reason})
	if err != nil {
		return nil, serviceError(err)
	}
	return d, nil
}

func (s *Server) handleTradeGetDispute(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params IDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	d, err := s.trade.GetDispute(ctx, params.ID)
	if err != nil {
		return nil, serviceError(err)
	}
	return d, nil
}

func (s *Server) handleTradeListMessages(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params ListMessagesParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	var since time.Time
	if params.Since != "" {
		t, err := time.Parse(time.RFC3339Nano, params.Since)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid since: %v", err)}
		}
		since = t
	}
	msgs, err := s.trade.ListMessages(ctx, params.OrderID, since)
	if err != nil {
		return nil, serviceError(err)
	}
	return msgs, nil
}

func (s *Server) handleTradeSendMessage(ctx context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireTrade(); err != nil {
		return nil, err
	}
	var params SendMessageParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	msg, err := s.trade.SendMessage(ctx, params.OrderID, trade.MessageRequest{Sender: params.Sender, Body: params.Body})
	if err != nil {
		return nil, serviceError(err)
	}
	return msg, nil
}
