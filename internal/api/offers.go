package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/swapgrid/swapgrid/internal/feed"
	"github.com/swapgrid/swapgrid/internal/source"
)

// Feed handles GET /api/feed
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// LoadNextPage handles POST /api/feed/next. It triggers the store's
// page fetch and returns the resulting state. A fetch failure still
// answers 200: the error is feed state, not a transport fault.
func (h *Handler) LoadNextPage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.LoadNextPage(r.Context()); err != nil {
		h.log.Warn("feed page load failed", "error", err)
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// OfferDetail is the detail-page payload: the offer plus the user's
// current vote on it.
type OfferDetail struct {
	Offer    *source.Offer `json:"offer"`
	UserVote int           `json:"user_vote"`
}

// GetOffer handles GET /api/offers/{id}. Lookup is strictly against
// the accumulated set; offers not yet paged in are a 404.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "offer id required")
		return
	}

	offer, ok := h.store.OfferByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "offer not found")
		return
	}

	writeJSON(w, http.StatusOK, OfferDetail{
		Offer:    offer,
		UserVote: h.store.UserVote(id),
	})
}

// SourcePage handles GET /api/source/offers
func (h *Handler) SourcePage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 0
	if pageStr := query.Get("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		page = p
	}

	pageSize := feed.DefaultPageSize
	if sizeStr := query.Get("page_size"); sizeStr != "" {
		s, err := strconv.Atoi(sizeStr)
		if err != nil || s <= 0 || s > 100 {
			writeError(w, http.StatusBadRequest, "page_size must be 1-100")
			return
		}
		pageSize = s
	}

	p, err := h.src.FetchPage(r.Context(), page, pageSize)
	if err != nil {
		h.log.Warn("source page fetch failed", "page", page, "error", err)
		writeError(w, http.StatusBadGateway, "source error")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// SourceOffer handles GET /api/source/offers/{id}
func (h *Handler) SourceOffer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "offer id required")
		return
	}

	offer, err := h.src.FetchByID(r.Context(), id)
	if errors.Is(err, source.ErrNotFound) {
		writeError(w, http.StatusNotFound, "offer not found")
		return
	}
	if err != nil {
		h.log.Warn("source offer fetch failed", "offer", id, "error", err)
		writeError(w, http.StatusBadGateway, "source error")
		return
	}

	writeJSON(w, http.StatusOK, offer)
}
