// Package rpc implements the JSON-RPC 2.0 API server and the REST proxy
// routes used by the browser wallet.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/chainrpc"
	klog "github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/market"
	"github.com/Klingon-tech/klingpay/internal/ratelimit"
	"github.com/Klingon-tech/klingpay/internal/trade"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klingpay",
	Subsystem: "rpc",
	Name:      "requests_total",
	Help:      "JSON-RPC calls by method and outcome.",
}, []string{"method", "outcome"})

// Collectors returns the package metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestsTotal}
}

// Server is the JSON-RPC 2.0 and REST HTTP server.
type Server struct {
	addr        string
	network     config.NetworkType
	keystore    *wallet.Keystore       // For wallet RPC (nil = disabled).
	kdf         wallet.KDFParams       // For new keystore files.
	solana      *chainrpc.Proxy        // For solana_* and /api/solana (nil = disabled).
	market      *market.Service        // For market_* and quote/price routes (nil = disabled).
	trade       *trade.Client          // For trade_* (nil = disabled).
	limiter     *ratelimit.MapLimiter  // Per-client limit (nil = unlimited).
	metrics     http.Handler           // For /metrics (nil = disabled).
	handlers    map[string]handlerFunc
	started     time.Time
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
// Services are attached with the Set* methods before Start.
func New(addr string, network config.NetworkType, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:    addr,
		network: network,
		kdf:     wallet.DefaultKDFParams(),
		started: time.Now(),
		logger:  klog.RPC,
	}
	s.handlers = s.methods()

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	r := mux.NewRouter()
	r.Use(s.filter)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.registerREST(r.PathPrefix("/api").Subrouter())
	r.HandleFunc("/", s.handleRequest)
	// Middleware only wraps matched routes; 404 and 405 still need CORS.
	r.NotFoundHandler = s.filter(http.HandlerFunc(restNotFound))
	r.MethodNotAllowedHandler = s.filter(http.HandlerFunc(restMethodNotAllowed))

	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// SetKeystore sets the wallet keystore and the KDF parameters used for
// new wallets.
func (s *Server) SetKeystore(ks *wallet.Keystore, params wallet.KDFParams) {
	s.keystore = ks
	s.kdf = params
}

// SetSolana sets the Solana RPC proxy.
func (s *Server) SetSolana(p *chainrpc.Proxy) {
	s.solana = p
}

// SetMarket sets the market data service.
func (s *Server) SetMarket(m *market.Service) {
	s.market = m
}

// SetTrade sets the trade API client.
func (s *Server) SetTrade(c *trade.Client) {
	s.trade = c
}

// SetRateLimiter sets the per-client rate limiter.
func (s *Server) SetRateLimiter(l *ratelimit.MapLimiter) {
	s.limiter = l
}

// SetMetricsGatherer exposes g on /metrics.
func (s *Server) SetMetricsGatherer(g prometheus.Gatherer) {
	s.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// filter applies the IP allow-list, CORS and the rate limit to every
// matched route.
func (s *Server) filter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// IP filtering.
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		// CORS headers.
		s.setCORSHeaders(w, r)

		// Handle CORS preflight.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.URL.Path != "/metrics" && r.URL.Path != "/healthz" &&
			!s.limiter.Allow(ratelimit.ClientKey(r), time.Now()) {
			if r.URL.Path == "/" {
				writeError(w, nil, CodeRateLimited, "rate limit exceeded")
			} else {
				writeREST(w, http.StatusTooManyRequests, restError{Error: "rate limit exceeded", Code: CodeRateLimited})
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		requestsTotal.WithLabelValues(s.metricMethod(req.Method), "error").Inc()
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	requestsTotal.WithLabelValues(s.metricMethod(req.Method), "ok").Inc()
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

type handlerFunc func(ctx context.Context, req *Request) (interface{}, *Error)

// methods returns the dispatch table.
func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"node_getInfo":            s.handleNodeGetInfo,
		"mnemonic_generate":       s.handleMnemonicGenerate,
		"mnemonic_validate":       s.handleMnemonicValidate,
		"key_derive":              s.handleKeyDerive,
		"wallet_create":           s.handleWalletCreate,
		"wallet_import":           s.handleWalletImport,
		"wallet_list":             s.handleWalletList,
		"wallet_newAddress":       s.handleWalletNewAddress,
		"wallet_listAddresses":    s.handleWalletListAddresses,
		"wallet_exportKey":        s.handleWalletExportKey,
		"wallet_signMessage":      s.handleWalletSignMessage,
		"solana_getBalance":       s.handleSolanaGetBalance,
		"solana_getTokenAccounts": s.handleSolanaGetTokenAccounts,
		"market_getQuote":         s.handleMarketGetQuote,
		"market_getPrice":         s.handleMarketGetPrice,
		"market_getTokenBalances": s.handleMarketGetTokenBalances,
		"trade_listOrders":        s.handleTradeListOrders,
		"trade_getOrder":          s.handleTradeGetOrder,
		"trade_createOrder":       s.handleTradeCreateOrder,
		"trade_cancelOrder":       s.handleTradeCancelOrder,
		"trade_openEscrow":        s.handleTradeOpenEscrow,
		"trade_getEscrow":         s.handleTradeGetEscrow,
		"trade_releaseEscrow":     s.handleTradeReleaseEscrow,
		"trade_openDispute":       s.handleTradeOpenDispute,
		"trade_getDispute":        s.handleTradeGetDispute,
		"trade_listMessages":      s.handleTradeListMessages,
		"trade_sendMessage":       s.handleTradeSendMessage,
	}
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	h, ok := s.handlers[req.Method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
	return h(ctx, req)
}

// metricMethod keeps unknown method names out of metric labels.
func (s *Server) metricMethod(method string) string {
	if _, ok := s.handlers[method]; ok {
		return method
	}
	return "unknown"
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	// Check if origin is allowed.
	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}

	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseOptionalParams is parseParams for methods whose params may be
// omitted.
func parseOptionalParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return nil
	}
	return parseParams(req, target)
}
