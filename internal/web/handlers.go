// Package web serves the published snapshots as JSON and as auto-refreshing
// HTML pages.
package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"cryptowatch/internal/etherscan"
	"cryptowatch/internal/market"
	"cryptowatch/internal/refresh"
	"cryptowatch/internal/snapshot"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// LoopStatus is the view of a refresh loop reported by /healthz.
type LoopStatus interface {
	Name() string
	State() refresh.State
	Cycles() uint64
}

type Handler struct {
	prices       *snapshot.Store[market.Quote]
	transactions *snapshot.Store[[]etherscan.Transaction]
	loops        []LoopStatus
	metrics      http.Handler
	logger       *slog.Logger

	pricesPoll       time.Duration
	transactionsPoll time.Duration
}

// Options tunes how often the HTML pages poll the JSON endpoints.
type Options struct {
	PricesPoll       time.Duration
	TransactionsPoll time.Duration
}

func NewHandler(
	prices *snapshot.Store[market.Quote],
	transactions *snapshot.Store[[]etherscan.Transaction],
	loops []LoopStatus,
	metrics http.Handler,
	opts Options,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PricesPoll <= 0 {
		opts.PricesPoll = time.Second
	}
	if opts.TransactionsPoll <= 0 {
		opts.TransactionsPoll = 30 * time.Second
	}
	return &Handler{
		prices:           prices,
		transactions:     transactions,
		loops:            loops,
		metrics:          metrics,
		logger:           logger.With("component", "web"),
		pricesPoll:       opts.PricesPoll,
		transactionsPoll: opts.TransactionsPoll,
	}
}

// Routes returns the HTTP handler with every endpoint registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.PricesPage)
	mux.HandleFunc("GET /eth", h.TransactionsPage)
	mux.HandleFunc("GET /api/prices", h.GetPrices)
	mux.HandleFunc("GET /api/eth-transactions", h.GetTransactions)
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return withCORS(mux)
}

// Setup builds the HTTP server listening on addr.
func (h *Handler) Setup(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, buildPrices(h.prices.Current()))
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, buildTransactions(h.transactions.Current()))
}

type loopHealth struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Cycles uint64 `json:"cycles"`
}

// HealthCheck reports ok once every loop has published at least one cycle.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	loops := make([]loopHealth, len(h.loops))
	for i, l := range h.loops {
		loops[i] = loopHealth{Name: l.Name(), State: l.State().String(), Cycles: l.Cycles()}
		if loops[i].Cycles == 0 {
			status = "starting"
		}
	}

	sendJSONResponse(w, map[string]any{
		"status": status,
		"loops":  loops,
	})
}

type pricesPage struct {
	pricesResponse
	PollMillis int64
}

type transactionsPage struct {
	transactionsResponse
	PollMillis int64
}

func (h *Handler) PricesPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "prices.html", pricesPage{
		pricesResponse: buildPrices(h.prices.Current()),
		PollMillis:     h.pricesPoll.Milliseconds(),
	})
}

func (h *Handler) TransactionsPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "eth.html", transactionsPage{
		transactionsResponse: buildTransactions(h.transactions.Current()),
		PollMillis:           h.transactionsPoll.Milliseconds(),
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("Failed to render page", "template", name, "error", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sendJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
