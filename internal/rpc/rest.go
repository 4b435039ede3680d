package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/market"
)

// restError is the body of every non-2xx REST response.
type restError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// registerREST mounts the browser-facing proxy routes on r. OPTIONS is
// accepted on every route so preflight requests reach the CORS filter.
func (s *Server) registerREST(r *mux.Router) {
	r.HandleFunc("/solana/rpc", s.restSolanaRPC).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/solana/balance/{address}", s.restSolanaBalance).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/solana/tokens/{address}", s.restSolanaTokens).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/quote", s.restQuote).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/price/{mint}", s.restPrice).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/moralis/{chain}/{address}", s.restMoralis).Methods(http.MethodGet, http.MethodOptions)

	// A subrouter without its own handler reports a method mismatch as 404.
	r.MethodNotAllowedHandler = s.filter(http.HandlerFunc(restMethodNotAllowed))
}

func restNotFound(w http.ResponseWriter, _ *http.Request) {
	writeREST(w, http.StatusNotFound, restError{Error: "not found", Code: CodeNotFound})
}

func restMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeREST(w, http.StatusMethodNotAllowed, restError{Error: "method " + r.Method + " not allowed", Code: CodeInvalidRequest})
}

func writeREST(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRESTError writes e with the HTTP status matching its code.
func writeRESTError(w http.ResponseWriter, e *Error) {
	writeREST(w, httpStatus(e.Code), restError{Error: e.Message, Code: e.Code})
}

func httpStatus(code int) int {
	switch code {
	case CodeInvalidParams, CodeInvalidRequest, CodeParseError:
		return http.StatusBadRequest
	case CodeNotFound, CodeMethodNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeREST(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"network": string(s.network),
		"version": config.Version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

// restSolanaRPC passes an allow-listed JSON-RPC body through to the first
// healthy Solana endpoint and returns the node's response unchanged.
func (s *Server) restSolanaRPC(w http.ResponseWriter, r *http.Request) {
	if s.solana == nil {
		writeRESTError(w, disabled("solana proxy"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeRESTError(w, &Error{Code: CodeParseError, Message: "failed to read request body"})
		return
	}
	if len(body) > maxBodySize {
		writeRESTError(w, &Error{Code: CodeInvalidRequest, Message: "request body too large"})
		return
	}

	resp, err := s.solana.Forward(r.Context(), body)
	if err != nil {
		s.logger.Debug().Err(err).Msg("solana forward failed")
		writeRESTError(w, serviceError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (s *Server) restSolanaBalance(w http.ResponseWriter, r *http.Request) {
	if s.solana == nil {
		writeRESTError(w, disabled("solana proxy"))
		return
	}
	bal, err := s.solana.Balance(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeRESTError(w, serviceError(err))
		return
	}
	writeREST(w, http.StatusOK, bal)
}

func (s *Server) restSolanaTokens(w http.ResponseWriter, r *http.Request) {
	if s.solana == nil {
		writeRESTError(w, disabled("solana proxy"))
		return
	}
	address := mux.Vars(r)["address"]
	accounts, err := s.solana.TokenAccounts(r.Context(), address)
	if err != nil {
		writeRESTError(w, serviceError(err))
		return
	}
	writeREST(w, http.StatusOK, &TokenAccountsResult{Address: address, Accounts: accounts})
}

func (s *Server) restQuote(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeRESTError(w, disabled("market service"))
		return
	}
	q := r.URL.Query()
	req := market.QuoteRequest{
		InputMint:  q.Get("inputMint"),
		OutputMint: q.Get("outputMint"),
	}
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		writeRESTError(w, &Error{Code: CodeInvalidParams, Message: "amount must be an unsigned integer"})
		return
	}
	req.Amount = amount
	if v := q.Get("slippageBps"); v != "" {
		bps, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			writeRESTError(w, &Error{Code: CodeInvalidParams, Message: "slippageBps must be an unsigned integer"})
			return
		}
		req.SlippageBps = uint16(bps)
	}

	quote, err := s.market.Quote(r.Context(), req)
	if err != nil {
		writeRESTError(w, serviceError(err))
		return
	}
	writeREST(w, http.StatusOK, quote)
}

func (s *Server) restPrice(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeRESTError(w, disabled("market service"))
		return
	}
	price, err := s.market.Price(r.Context(), mux.Vars(r)["mint"])
	if err != nil {
		writeRESTError(w, serviceError(err))
		return
	}
	writeREST(w, http.StatusOK, price)
}

func (s *Server) restMoralis(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeRESTError(w, disabled("market service"))
		return
	}
	vars := mux.Vars(r)
	tokens, err := s.market.TokenBalances(r.Context(), vars["chain"], vars["address"])
	if err != nil {
		writeRESTError(w, serviceError(err))
		return
	}
	writeREST(w, http.StatusOK, &TokenBalancesResult{Chain: vars["chain"], Address: vars["address"], Tokens: tokens})
}
