package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/swapgrid/swapgrid/internal/checkout"
	"github.com/swapgrid/swapgrid/internal/config"
	"github.com/swapgrid/swapgrid/internal/feed"
	"github.com/swapgrid/swapgrid/internal/ratelimit"
	"github.com/swapgrid/swapgrid/internal/source"
)

// Handler holds dependencies for API handlers
type Handler struct {
	store   *feed.Store
	src     source.Source
	orders  *checkout.Service
	limiter ratelimit.Limiter
	cfg     *config.Config
	log     *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(store *feed.Store, src source.Source, orders *checkout.Service, limiter ratelimit.Limiter, cfg *config.Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		store:   store,
		src:     src,
		orders:  orders,
		limiter: limiter,
		cfg:     cfg,
		log:     log,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Session feed (the store's state surface)
	mux.HandleFunc("GET /api/feed", h.Feed)
	mux.HandleFunc("POST /api/feed/next", h.LoadNextPage)
	mux.HandleFunc("GET /api/feed/events", h.Events)
	mux.HandleFunc("GET /api/offers/{id}", h.GetOffer)
	mux.HandleFunc("POST /api/votes", h.CreateVote)

	// Purchase simulation
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)

	// Source passthrough, so another instance can use this one as its
	// remote offer source.
	mux.HandleFunc("GET /api/source/offers", h.SourcePage)
	mux.HandleFunc("GET /api/source/offers/{id}", h.SourceOffer)
	mux.HandleFunc("POST /api/source/votes/delta", h.SourceVoteDelta)

	return mux
}

// Response helpers

type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate limit exceeded",
		RetryAfter: retryAfter,
	})
}

// Request helpers

func (h *Handler) getClientIP(r *http.Request) string {
	// Check X-Forwarded-For first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	// Check X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func (h *Handler) checkRateLimit(r *http.Request, action string, limit int) (bool, int) {
	key := action + ":" + h.getClientIP(r)

	if !h.limiter.Allow(key, limit, h.cfg.RateLimitWindow) {
		// Round up so a sub-second wait never tells the client to
		// retry immediately.
		retryAfter := int(math.Ceil(h.limiter.RetryAfter(key, limit, h.cfg.RateLimitWindow).Seconds()))
		return false, retryAfter
	}

	return true, 0
}
