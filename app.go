package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cryptowatch/internal/alphavantage"
	"cryptowatch/internal/binance"
	"cryptowatch/internal/config"
	"cryptowatch/internal/coordinator"
	"cryptowatch/internal/etherscan"
	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/market"
	"cryptowatch/internal/metrics"
	"cryptowatch/internal/mirror"
	"cryptowatch/internal/ratelimit"
	"cryptowatch/internal/refresh"
	"cryptowatch/internal/snapshot"
	"cryptowatch/internal/web"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// app is the assembled service: two refresh loops and the HTTP server
// reading their stores.
type app struct {
	logger       *slog.Logger
	instance     string
	prices       *refresh.Loop[market.Quote]
	transactions *refresh.Loop[[]etherscan.Transaction]
	server       *http.Server
	redis        *redis.Client
}

func newApp(cfg *config.Config, limiter *ratelimit.Limiter, logger *slog.Logger) (*app, error) {
	a := &app{
		logger:   logger,
		instance: uuid.NewString(),
	}
	m := metrics.New()

	// Create price fetchers dynamically from configuration
	var priceFetchers []fetcher.Fetcher[market.Quote]

	binanceClient := fetcher.NewHTTPClient(fetcher.ClientOptions{
		BaseURL: cfg.BinanceBaseURL,
		Retries: cfg.HTTPRetries,
		Source:  string(ratelimit.SourceBinance),
		Logger:  logger,
	})
	for _, symbol := range cfg.BinanceSymbols {
		pair, err := market.ParsePair(symbol)
		if err != nil {
			return nil, err
		}
		priceFetchers = append(priceFetchers, binance.NewTickerFetcher(pair, cfg.BinanceTimeframes, binanceClient, limiter, logger))
	}

	if len(cfg.AlphavantageSymbols) > 0 {
		alphavantageClient := fetcher.NewHTTPClient(fetcher.ClientOptions{
			BaseURL: cfg.AlphavantageBaseURL,
			Retries: cfg.HTTPRetries,
			Source:  string(ratelimit.SourceAlphaVantage),
			Logger:  logger,
		})
		for _, symbol := range cfg.AlphavantageSymbols {
			priceFetchers = append(priceFetchers, alphavantage.NewQuoteFetcher(cfg.AlphavantageAPIKey, symbol, alphavantageClient, limiter))
		}
	}

	// Create transaction fetchers
	var txFetchers []fetcher.Fetcher[[]etherscan.Transaction]

	etherscanClient := fetcher.NewHTTPClient(fetcher.ClientOptions{
		BaseURL: cfg.EtherscanBaseURL,
		Retries: cfg.HTTPRetries,
		Source:  string(ratelimit.SourceEtherscan),
		Logger:  logger,
	})
	for _, address := range cfg.EtherscanAddresses {
		txFetchers = append(txFetchers, etherscan.NewTransactionsFetcher(cfg.EtherscanAPIKey, address, cfg.EtherscanTxLimit, etherscanClient, limiter))
	}

	var priceMirror *mirror.Redis[market.Quote]
	var txMirror *mirror.Redis[[]etherscan.Transaction]
	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			// Writes are retried every cycle, so an unavailable Redis is not fatal.
			logger.Warn("Redis unavailable, mirror writes will fail until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		priceMirror = mirror.NewRedis[market.Quote](a.redis, "prices", cfg.Redis.TTL, logger)
		txMirror = mirror.NewRedis[[]etherscan.Transaction](a.redis, "transactions", cfg.Redis.TTL, logger)
	}

	a.prices = newLoop("prices", a.instance, priceFetchers, cfg.Prices, m, priceMirror, logger)
	a.transactions = newLoop("transactions", a.instance, txFetchers, cfg.Transactions, m, txMirror, logger)

	handler := web.NewHandler(
		a.prices.Store(),
		a.transactions.Store(),
		[]web.LoopStatus{a.prices, a.transactions},
		m.Handler(),
		web.Options{PricesPoll: time.Second, TransactionsPoll: cfg.Transactions.Interval},
		logger,
	)
	a.server = handler.Setup(cfg.ListenAddr)

	return a, nil
}

// newLoop wires one fetcher set to its coordinator, store and observers.
func newLoop[V any](
	name, instance string,
	fetchers []fetcher.Fetcher[V],
	cfg config.LoopConfig,
	m *metrics.Metrics,
	mr *mirror.Redis[V],
	logger *slog.Logger,
) *refresh.Loop[V] {
	coord := coordinator.New(fetchers, coordinator.Options{
		Workers: cfg.Workers,
		Timeout: cfg.FetchTimeout,
	}, logger.With("loop", name))

	store := snapshot.NewStore(snapshot.Initial[V](instance, coord.Items()))

	observers := []refresh.Observer[V]{metrics.Observer[V](m, name)}
	if mr != nil {
		observers = append(observers, mr)
	}

	return refresh.New(refresh.Config{
		Name:     name,
		Interval: cfg.Interval,
		Window:   cfg.RateWindow,
	}, coord, store, logger, observers...)
}

// run starts the loops and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("Starting cryptowatch",
		"instance", a.instance,
		"addr", a.server.Addr,
		"price_items", len(a.prices.Store().Current().Records),
		"transaction_items", len(a.transactions.Store().Current().Records),
	)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{a.prices.Run, a.transactions.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Refresh loop stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
	}

	wg.Wait()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Closing Redis client failed", "error", err)
		}
	}

	a.logger.Info("Shutdown complete")
	return runErr
}
