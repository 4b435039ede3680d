package rpc

import (
	"github.com/Klingon-tech/klingpay/internal/chainrpc"
	"github.com/Klingon-tech/klingpay/internal/market"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeUnavailable    = -32001 // Feature disabled or provider not configured.
	CodeUpstream       = -32002 // Third-party service failed.
	CodeRateLimited    = -32005
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Mnemonic / key param types ──────────────────────────────────────────

// MnemonicGenerateParam is used by mnemonic_generate.
type MnemonicGenerateParam struct {
	Words int `json:"words,omitempty"` // 12 or 24, default 24.
}

// MnemonicParam is used by mnemonic_validate.
type MnemonicParam struct {
	Mnemonic string `json:"mnemonic"`
}

// KeyDeriveParam is used by key_derive.
type KeyDeriveParam struct {
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase,omitempty"`
	Path       string `json:"path"`
	Chain      string `json:"chain,omitempty"` // "solana" (default) or "evm".
}

// ── Mnemonic / key result types ─────────────────────────────────────────

// MnemonicResult is returned by mnemonic_generate.
type MnemonicResult struct {
	Mnemonic string `json:"mnemonic"`
	Words    int    `json:"words"`
}

// MnemonicValidateResult is returned by mnemonic_validate.
type MnemonicValidateResult struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized"`
	Reason     string `json:"reason,omitempty"`
}

// KeyDeriveResult is returned by key_derive. It never carries private key
// material.
type KeyDeriveResult struct {
	Chain     string `json:"chain"`
	Path      string `json:"path"`
	PublicKey string `json:"public_key"` // Hex.
	Address   string `json:"address"`
}

// ── Wallet param types ──────────────────────────────────────────────────

// WalletCreateParam is used by wallet_create.
type WalletCreateParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Words    int    `json:"words,omitempty"`
}

// WalletImportParam is used by wallet_import.
type WalletImportParam struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase,omitempty"`
}

// WalletNameParam is used by endpoints that only need a wallet name.
type WalletNameParam struct {
	Name  string `json:"name"`
	Chain string `json:"chain,omitempty"`
}

// WalletNewAddressParam is used by wallet_newAddress.
type WalletNewAddressParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Chain    string `json:"chain,omitempty"`
	Label    string `json:"label,omitempty"`
}

// WalletExportKeyParam is used by wallet_exportKey.
type WalletExportKeyParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Chain    string `json:"chain,omitempty"`
	Index    uint32 `json:"index"`
}

// WalletSignMessageParam is used by wallet_signMessage.
type WalletSignMessageParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Address  string `json:"address"`
	Message  string `json:"message"`
	Encoding string `json:"encoding,omitempty"` // "utf8" (default), "hex" or "base58".
}

// ── Wallet result types ─────────────────────────────────────────────────

// WalletCreateResult is returned by wallet_create.
type WalletCreateResult struct {
	Mnemonic   string `json:"mnemonic"`
	Address    string `json:"address"`
	EVMAddress string `json:"evm_address"`
}

// WalletImportResult is returned by wallet_import.
type WalletImportResult struct {
	Address    string `json:"address"`
	EVMAddress string `json:"evm_address"`
}

// WalletListResult is returned by wallet_list.
type WalletListResult struct {
	Wallets []string `json:"wallets"`
}

// WalletAccountEntry describes a wallet account in RPC results.
type WalletAccountEntry struct {
	Chain   string `json:"chain"`
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// WalletAddressListResult is returned by wallet_listAddresses.
type WalletAddressListResult struct {
	Accounts []WalletAccountEntry `json:"accounts"`
}

// WalletExportKeyResult is returned by wallet_exportKey. Solana keys are
// the base58 64-byte secret key; EVM keys are hex.
type WalletExportKeyResult struct {
	Chain      string `json:"chain"`
	PrivateKey string `json:"private_key"`
	PubKey     string `json:"pubkey"`
	Address    string `json:"address"`
}

// WalletSignMessageResult is returned by wallet_signMessage.
type WalletSignMessageResult struct {
	Chain     string `json:"chain"`
	Address   string `json:"address"`
	Signature string `json:"signature"` // Base58 (solana) or 0x hex (evm).
}

// ── Solana / market types ───────────────────────────────────────────────

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// TokenAccountsResult is returned by solana_getTokenAccounts.
type TokenAccountsResult struct {
	Address  string                  `json:"address"`
	Accounts []chainrpc.TokenAccount `json:"accounts"`
}

// MintParam is used by market_getPrice.
type MintParam struct {
	Mint string `json:"mint"`
}

// TokenBalancesParam is used by market_getTokenBalances.
type TokenBalancesParam struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// TokenBalancesResult is returned by market_getTokenBalances.
type TokenBalancesResult struct {
	Chain   string                `json:"chain"`
	Address string                `json:"address"`
	Tokens  []market.TokenBalance `json:"tokens"`
}

// ── Trade types ─────────────────────────────────────────────────────────

// IDParam is used by endpoints that take a record id.
type IDParam struct {
	ID string `json:"id"`
}

// OpenEscrowParam is used by trade_openEscrow.
type OpenEscrowParam struct {
	OrderID string `json:"order_id"`
	Buyer   string `json:"buyer"`
	Amount  string `json:"amount"`
}

// ReleaseEscrowParam is used by trade_releaseEscrow.
type ReleaseEscrowParam struct {
	ID          string `json:"id"`
	TxSignature string `json:"tx_signature,omitempty"`
}

// OpenDisputeParam is used by trade_openDispute.
type OpenDisputeParam struct {
	EscrowID string `json:"escrow_id"`
	Opener   string `json:"opener"`
	Reason   string `json:"reason"`
}

// ListMessagesParam is used by trade_listMessages.
type ListMessagesParam struct {
	OrderID string `json:"order_id"`
	Since   string `json:"since,omitempty"` // RFC 3339.
}

// SendMessageParam is used by trade_sendMessage.
type SendMessageParam struct {
	OrderID string `json:"order_id"`
	Sender  string `json:"sender"`
	Body    string `json:"body"`
}

// ── Node ────────────────────────────────────────────────────────────────

// NodeInfoResult is returned by node_getInfo.
type NodeInfoResult struct {
	Version         string `json:"version"`
	Network         string `json:"network"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Wallet          bool   `json:"wallet"`
	SolanaEndpoints int    `json:"solana_endpoints"`
	Market          bool   `json:"market"`
	Trade           bool   `json:"trade"`
}
