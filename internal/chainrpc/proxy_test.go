package chainrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Klingon-tech/klingpay/internal/cache"
	"github.com/Klingon-tech/klingpay/internal/upstream"
)

// System program id; a valid 32-byte base58 address.
const testAddress = "11111111111111111111111111111111"

type stubNode struct {
	srv   *httptest.Server
	calls atomic.Int32
}

// newStubNode serves canned results keyed by method name.
func newStubNode(t *testing.T, results map[string]string) *stubNode {
	t.Helper()
	n := &stubNode{}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			// Batches and passthrough payloads are echoed back.
			w.Write(body)
			return
		}
		res, ok := results[req.Method]
		if !ok {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + res + `}`))
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func failingNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testProxy(c cache.Cache, endpoints ...string) *Proxy {
	return NewProxy(Options{
		Network:    "devnet",
		Endpoints:  endpoints,
		Timeout:    2 * time.Second,
		BalanceTTL: time.Minute,
		Cache:      c,
	})
}

func TestFormatLamports(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{LamportsPerSOL, "1"},
		{1_500_000_000, "1.5"},
		{2_000_000_010, "2.00000001"},
	}
	for _, tt := range tests {
		if got := FormatLamports(tt.in); got != tt.want {
			t.Errorf("FormatLamports(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBalance(t *testing.T) {
	node := newStubNode(t, map[string]string{
		"getBalance": `{"context":{"slot":321},"value":1500000000}`,
	})
	p := testProxy(nil, node.srv.URL)

	bal, err := p.Balance(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal.Lamports != 1_500_000_000 || bal.SOL != "1.5" || bal.Slot != 321 {
		t.Errorf("Balance() = %+v", bal)
	}
	if bal.Address != testAddress {
		t.Errorf("address = %q, want %q", bal.Address, testAddress)
	}
}

func TestBalance_FailsOver(t *testing.T) {
	bad := failingNode(t)
	good := newStubNode(t, map[string]string{
		"getBalance": `{"context":{"slot":1},"value":42}`,
	})
	p := testProxy(nil, bad.URL, good.srv.URL)

	bal, err := p.Balance(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal.Lamports != 42 {
		t.Errorf("lamports = %d, want 42", bal.Lamports)
	}
}

func TestBalance_Cached(t *testing.T) {
	node := newStubNode(t, map[string]string{
		"getBalance": `{"context":{"slot":1},"value":7}`,
	})
	p := testProxy(cache.NewMemory(16, time.Minute), node.srv.URL)

	for i := 0; i < 3; i++ {
		if _, err := p.Balance(context.Background(), testAddress); err != nil {
			t.Fatalf("Balance() error: %v", err)
		}
	}
	if got := node.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestBalance_InvalidAddress(t *testing.T) {
	node := newStubNode(t, nil)
	p := testProxy(nil, node.srv.URL)

	for _, addr := range []string{"", "not-base58!", "3yZe7d"} {
		if _, err := p.Balance(context.Background(), addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Balance(%q) error = %v, want ErrInvalidAddress", addr, err)
		}
	}
	if node.calls.Load() != 0 {
		t.Error("invalid addresses should not reach upstream")
	}
}

func TestBalance_AllFail(t *testing.T) {
	p := testProxy(nil, failingNode(t).URL, failingNode(t).URL)

	_, err := p.Balance(context.Background(), testAddress)
	if !errors.Is(err, upstream.ErrAllEndpointsFailed) {
		t.Fatalf("Balance() error = %v, want ErrAllEndpointsFailed", err)
	}
}

func TestBalance_InvalidParamsNotRetried(t *testing.T) {
	var second atomic.Int32
	reject := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid param"}}`))
	}))
	defer reject.Close()
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
	}))
	defer other.Close()

	p := testProxy(nil, reject.URL, other.URL)
	_, err := p.Balance(context.Background(), testAddress)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
		t.Fatalf("Balance() error = %v, want RPCError -32602", err)
	}
	if second.Load() != 0 {
		t.Error("invalid params should not be retried on the next endpoint")
	}
}

func TestTokenAccounts(t *testing.T) {
	const accounts = `{"context":{"slot":5},"value":[{"pubkey":"Acct1","account":{"data":{"program":"spl-token","parsed":{"type":"account","info":{"mint":"MintA","owner":"` + testAddress + `","tokenAmount":{"amount":"1234500","decimals":6,"uiAmountString":"1.2345"}}}}}}]}`
	node := newStubNode(t, map[string]string{
		"getTokenAccountsByOwner": accounts,
	})
	p := testProxy(nil, node.srv.URL)

	got, err := p.TokenAccounts(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("TokenAccounts() error: %v", err)
	}
	// The stub answers the same for both token programs.
	if len(got) != 2 {
		t.Fatalf("accounts = %d, want 2", len(got))
	}
	a := got[0]
	if a.Pubkey != "Acct1" || a.Mint != "MintA" || a.Amount != "1234500" || a.Decimals != 6 || a.UIAmount != "1.2345" {
		t.Errorf("account = %+v", a)
	}
	if got[0].Program != TokenProgramID || got[1].Program != Token2022ProgramID {
		t.Errorf("programs = %s, %s", got[0].Program, got[1].Program)
	}
}

func TestTokenAccounts_Empty(t *testing.T) {
	node := newStubNode(t, map[string]string{
		"getTokenAccountsByOwner": `{"context":{"slot":5},"value":[]}`,
	})
	p := testProxy(nil, node.srv.URL)

	got, err := p.TokenAccounts(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("TokenAccounts() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("TokenAccounts() = %v, want empty slice", got)
	}
}

func TestForward(t *testing.T) {
	node := newStubNode(t, map[string]string{"getSlot": `99`})
	p := testProxy(nil, node.srv.URL)

	out, err := p.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":7,"method":"getSlot"}`))
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	var resp struct {
		Result int `json:"result"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Result != 99 {
		t.Errorf("result = %d, want 99", resp.Result)
	}
}

func TestForward_Batch(t *testing.T) {
	node := newStubNode(t, nil)
	p := testProxy(nil, node.srv.URL)

	batch := `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","id":2,"method":"getBlockHeight"}]`
	out, err := p.Forward(context.Background(), []byte(batch))
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if string(out) != batch {
		t.Errorf("Forward() = %s, want echoed batch", out)
	}
}

func TestForward_Rejects(t *testing.T) {
	node := newStubNode(t, nil)
	p := testProxy(nil, node.srv.URL)

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"disallowed method", `{"jsonrpc":"2.0","id":1,"method":"requestAirdrop"}`, ErrMethodNotAllowed},
		{"disallowed in batch", `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","id":2,"method":"getProgramAccounts"}]`, ErrMethodNotAllowed},
		{"empty", ``, ErrBadRequest},
		{"not json", `hello`, ErrBadRequest},
		{"empty batch", `[]`, ErrBadRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrBadRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"getSlot"}`, ErrBadRequest},
		{"case variant key", `{"jsonrpc":"2.0","id":1,"method":"getProgramAccounts","params":["x"],"Method":"getBalance"}`, ErrBadRequest},
		{"case variant only", `{"jsonrpc":"2.0","id":1,"METHOD":"getBalance"}`, ErrBadRequest},
		{"case variant in batch", `[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","id":2,"method":"getProgramAccounts","Method":"getSlot"}]`, ErrBadRequest},
		{"unknown field", `{"jsonrpc":"2.0","id":1,"method":"getSlot","extra":true}`, ErrBadRequest},
		{"scalar params", `{"jsonrpc":"2.0","id":1,"method":"getSlot","params":"x"}`, ErrBadRequest},
		{"non-object call", `[1]`, ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Forward(context.Background(), []byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("Forward() error = %v, want %v", err, tt.want)
			}
		})
	}
	if node.calls.Load() != 0 {
		t.Error("rejected payloads should not reach upstream")
	}
}

func TestForward_SendsCanonicalBody(t *testing.T) {
	bodies := make(chan []byte, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":1}`))
	}))
	t.Cleanup(srv.Close)
	p := testProxy(nil, srv.URL)

	payload := `{ "params" : ["` + testAddress + `", {"commitment":"confirmed"}], "method":"getBalance", "id":"a", "jsonrpc":"2.0" }`
	if _, err := p.Forward(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":"a","method":"getBalance","params":["` + testAddress + `",{"commitment":"confirmed"}]}`
	if got := <-bodies; string(got) != want {
		t.Errorf("upstream body = %s, want %s", got, want)
	}

	if _, err := p.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"getSlot","params":null}`)); err != nil {
		t.Fatalf("Forward() with null params error: %v", err)
	}
	if got := <-bodies; string(got) != `{"jsonrpc":"2.0","id":2,"method":"getSlot"}` {
		t.Errorf("upstream body = %s", got)
	}
}

func TestIsAllowedMethod(t *testing.T) {
	if !IsAllowedMethod("sendTransaction") || !IsAllowedMethod("getBalance") {
		t.Error("sendTransaction and getBalance should be allowed")
	}
	if IsAllowedMethod("requestAirdrop") {
		t.Error("requestAirdrop should not be allowed")
	}
}
