package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	klog "github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

// requireWallet returns an error if the wallet keystore is not enabled.
func (s *Server) requireWallet() *Error {
	if s.keystore == nil {
		return &Error{Code: CodeUnavailable, Message: "wallet not enabled (start node with --wallet)"}
	}
	return nil
}

// loadSeed decrypts a wallet. The caller must zero the returned seed.
func (s *Server) loadSeed(name, password string) ([]byte, *Error) {
	if name == "" || password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}
	seed, err := s.keystore.Load(name, []byte(password))
	if err != nil {
		klog.Wallet.Debug().Err(err).Str("wallet", name).Msg("wallet load failed")
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid wallet name or password"}
	}
	return seed, nil
}

func (s *Server) handleWalletCreate(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletCreateParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and password are required"}
	}
	if params.Words == 0 {
		params.Words = 24
	}

	mnemonic, err := wallet.GenerateMnemonic(params.Words)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	sol, evm, rpcErr := s.storeWallet(params.Name, params.Password, mnemonic, "")
	if rpcErr != nil {
		return nil, rpcErr
	}
	klog.Wallet.Info().Str("wallet", params.Name).Str("address", sol).Msg("Wallet created")

	return &WalletCreateResult{
		Mnemonic:   mnemonic,
		Address:    sol,
		EVMAddress: evm,
	}, nil
}

func (s *Server) handleWalletImport(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletImportParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Password == "" || strings.TrimSpace(params.Mnemonic) == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name, password, and mnemonic are required"}
	}

	mnemonic, err := wallet.AssertValidMnemonic(params.Mnemonic)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	sol, evm, rpcErr := s.storeWallet(params.Name, params.Password, mnemonic, params.Passphrase)
	if rpcErr != nil {
		return nil, rpcErr
	}
	klog.Wallet.Info().Str("wallet", params.Name).Str("address", sol).Msg("Wallet imported")

	return &WalletImportResult{Address: sol, EVMAddress: evm}, nil
}

// storeWallet encrypts the seed of mnemonic and records account 0 on
// both chains. It returns the Solana and EVM addresses.
func (s *Server) storeWallet(name, password, mnemonic, passphrase string) (string, string, *Error) {
	if err := wallet.ValidateWalletName(name); err != nil {
		return "", "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return "", "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	defer zero(seed)

	var entries []wallet.AccountEntry
	for _, chain := range []wallet.Chain{wallet.ChainSolana, wallet.ChainEVM} {
		acct, err := wallet.DeriveAccount(seed, chain, 0)
		if err != nil {
			return "", "", &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive %s account: %v", chain, err)}
		}
		acct.Name = "Default"
		entries = append(entries, acct)
	}

	if err := s.keystore.Create(name, seed, []byte(password), s.kdf, entries...); err != nil {
		if errors.Is(err, wallet.ErrWalletExists) {
			return "", "", &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return "", "", &Error{Code: CodeInternalError, Message: fmt.Sprintf("create wallet: %v", err)}
	}
	return entries[0].Address, entries[1].Address, nil
}

func (s *Server) handleWalletList(_ context.Context, _ *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	names, listErr := s.keystore.List()
	if listErr != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list wallets: %v", listErr)}
	}

	if names == nil {
		names = []string{}
	}

	return &WalletListResult{Wallets: names}, nil
}

func (s *Server) handleWalletNewAddress(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletNewAddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	chain, rpcErr := parseChain(params.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}

	seed, rpcErr := s.loadSeed(params.Name, params.Password)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer zero(seed)

	index, err := s.keystore.NextIndex(params.Name, chain)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("next index: %v", err)}
	}
	if index >= wallet.HardenedOffset {
		return nil, &Error{Code: CodeInvalidParams, Message: "account index space exhausted"}
	}

	acct, err := wallet.DeriveAccount(seed, chain, index)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive account: %v", err)}
	}
	acct.Name = params.Label
	if acct.Name == "" {
		acct.Name = fmt.Sprintf("Account %d", index)
	}
	if err := s.keystore.AddAccount(params.Name, acct); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("add account: %v", err)}
	}

	return accountEntry(acct), nil
}

func (s *Server) handleWalletListAddresses(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletNameParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name is required"}
	}
	var chain wallet.Chain
	if params.Chain != "" {
		c, rpcErr := parseChain(params.Chain)
		if rpcErr != nil {
			return nil, rpcErr
		}
		chain = c
	}

	accts, err := s.keystore.Accounts(params.Name, chain)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, &Error{Code: CodeNotFound, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("list accounts: %v", err)}
	}

	out := make([]WalletAccountEntry, 0, len(accts))
	for _, a := range accts {
		out = append(out, *accountEntry(a))
	}
	return &WalletAddressListResult{Accounts: out}, nil
}

func accountEntry(a wallet.AccountEntry) *WalletAccountEntry {
	return &WalletAccountEntry{
		Chain:   string(a.Chain),
		Index:   a.Index,
		Path:    a.Path,
		Name:    a.Name,
		Address: a.Address,
	}
}

func (s *Server) handleWalletExportKey(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletExportKeyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	chain, rpcErr := parseChain(params.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Index >= wallet.HardenedOffset {
		return nil, &Error{Code: CodeInvalidParams, Message: "index must be below 2^31"}
	}

	seed, rpcErr := s.loadSeed(params.Name, params.Password)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer zero(seed)

	klog.Wallet.Warn().Str("wallet", params.Name).Str("chain", string(chain)).Uint32("index", params.Index).Msg("Private key exported")

	switch chain {
	case wallet.ChainEVM:
		key, err := wallet.DeriveSecp256k1Path(wallet.EVMPath(params.Index).String(), seed)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive key: %v", err)}
		}
		priv := key.PrivateKeyBytes()
		return &WalletExportKeyResult{
			Chain:      string(chain),
			PrivateKey: hex.EncodeToString(priv),
			PubKey:     hex.EncodeToString(key.PublicKeyBytes()),
			Address:    key.Address(),
		}, nil
	default:
		master := wallet.NewMasterKey(seed)
		defer master.Wipe()
		key := master.DerivePath(wallet.SolanaPath(params.Index))
		defer key.Wipe()

		priv := key.PrivateKey()
		result := &WalletExportKeyResult{
			Chain:      string(chain),
			PrivateKey: base58.Encode(priv),
			PubKey:     hex.EncodeToString(key.PublicKey()),
			Address:    key.Address(),
		}
		zero(priv)
		return result, nil
	}
}

func (s *Server) handleWalletSignMessage(_ context.Context, req *Request) (interface{}, *Error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	var params WalletSignMessageParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Address == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	msg, rpcErr := decodeMessage(params.Message, params.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}

	seed, rpcErr := s.loadSeed(params.Name, params.Password)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer zero(seed)

	acct, err := s.keystore.FindAccount(params.Name, params.Address)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}

	result := &WalletSignMessageResult{Chain: string(acct.Chain), Address: acct.Address}
	switch acct.Chain {
	case wallet.ChainEVM:
		key, err := wallet.DeriveSecp256k1Path(acct.Path, seed)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("derive key: %v", err)}
		}
		ecKey, err := crypto.ToECDSA(key.PrivateKeyBytes())
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("load key: %v", err)}
		}
		sig, err := crypto.Sign(accounts.TextHash(msg), ecKey)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("sign: %v", err)}
		}
		sig[crypto.RecoveryIDOffset] += 27
		result.Signature = hexutil.Encode(sig)
	default:
		path, err := wallet.ParsePath(acct.Path)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("stored path: %v", err)}
		}
		master := wallet.NewMasterKey(seed)
		defer master.Wipe()
		key := master.DerivePath(path)
		defer key.Wipe()
		result.Signature = base58.Encode(key.Sign(msg))
	}
	return result, nil
}

func decodeMessage(message, encoding string) ([]byte, *Error) {
	if message == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "message is required"}
	}
	switch encoding {
	case "", "utf8":
		return []byte(message), nil
	case "hex":
		b, err := hex.DecodeString(strings.TrimPrefix(message, "0x"))
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid hex message: %v", err)}
		}
		return b, nil
	case "base58":
		b, err := base58.Decode(message)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid base58 message: %v", err)}
		}
		return b, nil
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown encoding %q", encoding)}
	}
}
