// Package node wires the wallet backend services together so they can be
// embedded in any binary (daemon, tests).
package node

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/cache"
	"github.com/Klingon-tech/klingpay/internal/chainrpc"
	klog "github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/market"
	"github.com/Klingon-tech/klingpay/internal/ratelimit"
	"github.com/Klingon-tech/klingpay/internal/rpc"
	"github.com/Klingon-tech/klingpay/internal/storage"
	"github.com/Klingon-tech/klingpay/internal/trade"
	"github.com/Klingon-tech/klingpay/internal/upstream"
	"github.com/Klingon-tech/klingpay/internal/wallet"
)

// mirrorCompactInterval is how often the badger value log is garbage
// collected.
const mirrorCompactInterval = time.Hour

// Node is a fully-initialized wallet backend.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Shared infrastructure
	cache    cache.Cache
	closers  []io.Closer
	db       *storage.BadgerDB // Trade mirror (nil = disabled).
	registry *prometheus.Registry
	quit     chan struct{}
	wg       sync.WaitGroup

	// Services
	solana  *chainrpc.Proxy
	market  *market.Service
	trade   *trade.Client
	limiter *ratelimit.MapLimiter

	// RPC
	rpcServer *rpc.Server
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, cache, storage, services, RPC) but does not bind the listener.
// Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingpay.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	klog.SetNetwork(string(cfg.Network))
	logger := klog.Node

	logger.Info().
		Str("version", config.Version).
		Int("solana_endpoints", len(cfg.SolanaEndpoints())).
		Msg("Starting Klingpay node")

	n := &Node{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	// ── 2. Response cache ───────────────────────────────────────────
	c, err := n.openCache()
	if err != nil {
		return nil, err
	}
	n.cache = c

	// ── 3. Upstream services ────────────────────────────────────────
	httpClient := upstream.NewClient(nil)

	n.solana = chainrpc.NewProxy(chainrpc.Options{
		Network:    string(cfg.Network),
		Endpoints:  cfg.SolanaEndpoints(),
		Timeout:    cfg.Upstream.Timeout,
		BalanceTTL: cfg.Upstream.BalanceTTL,
		Cache:      n.cache,
		HTTP:       httpClient,
	})

	n.market = market.NewService(market.Config{
		Network:        string(cfg.Network),
		JupiterURL:     cfg.Upstream.JupiterURL,
		DexScreenerURL: cfg.Upstream.DexScreenerURL,
		CoinGeckoURL:   cfg.Upstream.CoinGeckoURL,
		MoralisURL:     cfg.Upstream.MoralisURL,
		MoralisKey:     cfg.Upstream.MoralisKey,
		Timeout:        cfg.Upstream.Timeout,
		QuoteTTL:       cfg.Upstream.QuoteTTL,
		PriceTTL:       cfg.Upstream.PriceTTL,
		BalanceTTL:     cfg.Upstream.BalanceTTL,
	}, n.cache, httpClient)
	if cfg.Upstream.MoralisKey == "" {
		logger.Info().Msg("Moralis key not set; token balance lookups disabled")
	}

	// ── 4. Trade client + mirror ────────────────────────────────────
	var mirror *trade.Mirror
	if cfg.Trade.Mirror && cfg.Trade.APIURL != "" {
		db, err := storage.NewBadger(cfg.MirrorDir())
		if err != nil {
			n.close()
			return nil, fmt.Errorf("open trade mirror at %s: %w", cfg.MirrorDir(), err)
		}
		n.db = db
		mirror = trade.NewMirror(db, cfg.Trade.MirrorTTL)
		ev := klog.Storage.Info().Str("path", cfg.MirrorDir()).Dur("ttl", cfg.Trade.MirrorTTL)
		if stats, err := mirror.Stats(); err == nil {
			ev = ev.Interface("records", stats)
		}
		ev.Msg("Trade mirror opened")
	}
	n.trade = trade.NewClient(trade.ClientConfig{
		BaseURL: cfg.Trade.APIURL,
		Token:   cfg.Trade.APIToken,
		Timeout: cfg.Upstream.Timeout,
	}, httpClient, mirror)
	if !n.trade.Configured() {
		logger.Info().Msg("Trade API not configured; trade_* methods disabled")
	}

	// ── 5. Rate limiter ─────────────────────────────────────────────
	if cfg.RateLimit.Enabled {
		n.limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
		logger.Info().
			Float64("rps", cfg.RateLimit.RPS).
			Int("burst", cfg.RateLimit.Burst).
			Msg("Per-client rate limit enabled")
	}

	// ── 6. Metrics ──────────────────────────────────────────────────
	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, group := range [][]prometheus.Collector{
		upstream.Collectors(),
		cache.Collectors(),
		ratelimit.Collectors(),
		rpc.Collectors(),
	} {
		n.registry.MustRegister(group...)
	}

	// ── 7. RPC server ───────────────────────────────────────────────
	if !cfg.RPC.Enabled {
		if cfg.Wallet.Enabled {
			logger.Warn().Msg("wallet.enabled is true but RPC is disabled; wallet RPC endpoints unavailable")
		}
		logger.Warn().Msg("RPC disabled by config")
		return n, nil
	}

	rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
	srv := rpc.New(rpcAddr, cfg.Network, cfg.RPC)
	srv.SetSolana(n.solana)
	srv.SetMarket(n.market)
	srv.SetTrade(n.trade)
	srv.SetRateLimiter(n.limiter)
	srv.SetMetricsGatherer(n.registry)

	if cfg.Wallet.Enabled {
		ks, err := wallet.NewKeystore(cfg.KeystoreDir())
		if err != nil {
			n.close()
			return nil, fmt.Errorf("create wallet keystore: %w", err)
		}
		srv.SetKeystore(ks, kdfParams(cfg.Wallet))
		logger.Info().Str("path", cfg.KeystoreDir()).Msg("Wallet RPC enabled")
	}
	n.rpcServer = srv

	return n, nil
}

// openCache builds the configured response cache.
func (n *Node) openCache() (cache.Cache, error) {
	up := n.cfg.Upstream
	maxTTL := maxDuration(up.BalanceTTL, up.QuoteTTL, up.PriceTTL)

	switch n.cfg.Cache.Backend {
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:       n.cfg.Cache.RedisAddr,
			Password:   n.cfg.Cache.RedisPassword,
			DB:         n.cfg.Cache.RedisDB,
			Prefix:     "klingpay:" + string(n.cfg.Network) + ":",
			DefaultTTL: maxTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache at %s: %w", n.cfg.Cache.RedisAddr, err)
		}
		n.closers = append(n.closers, r)
		n.logger.Info().Str("addr", n.cfg.Cache.RedisAddr).Msg("Redis cache connected")
		return r, nil
	default:
		n.logger.Info().Int("size", n.cfg.Cache.Size).Dur("max_ttl", maxTTL).Msg("Memory cache ready")
		return cache.NewMemory(n.cfg.Cache.Size, maxTTL), nil
	}
}

// Start binds the RPC listener.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC at %s: %w", n.rpcServer.Addr(), err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	if n.db != nil {
		n.quit = make(chan struct{})
		n.wg.Add(1)
		go n.compactLoop()
	}

	n.logger.Info().
		Bool("wallet", n.cfg.Wallet.Enabled).
		Bool("trade", n.trade.Configured()).
		Bool("mirror", n.db != nil).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.quit != nil {
		close(n.quit)
		n.wg.Wait()
		n.quit = nil
	}
	n.close()
	n.logger.Info().Msg("Goodbye!")
}

// compactLoop periodically reclaims disk held by expired mirror records.
func (n *Node) compactLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(mirrorCompactInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			if err := n.db.Compact(); err != nil {
				klog.Storage.Warn().Err(err).Msg("Mirror compaction failed")
			}
		}
	}
}

func (n *Node) close() {
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close trade mirror")
		}
		n.db = nil
	}
	for _, c := range n.closers {
		c.Close()
	}
	n.closers = nil
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Registry returns the node's metrics registry.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}
