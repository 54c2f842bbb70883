package api

import (
	"encoding/json"
	"net/http"
)

type CreateVoteRequest struct {
	OfferID   string `json:"offer_id"`
	Direction string `json:"direction"` // "up" or "down"
}

type CreateVoteResponse struct {
	OfferID  string `json:"offer_id"`
	UserVote int    `json:"user_vote"`
	Votes    int    `json:"votes,omitempty"`
	Loaded   bool   `json:"loaded"`
}

// CreateVote handles POST /api/votes. Both directions toggle: voting
// the same way twice removes the vote, voting the other way switches
// it. The response reflects the optimistic state; reconciliation with
// the source happens in the background.
func (h *Handler) CreateVote(w http.ResponseWriter, r *http.Request) {
	// Rate limit check
	allowed, retryAfter := h.checkRateLimit(r, "vote", h.cfg.VoteRateLimit)
	if !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var req CreateVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.OfferID == "" {
		writeError(w, http.StatusBadRequest, "offer_id required")
		return
	}
	if req.Direction != "up" && req.Direction != "down" {
		writeError(w, http.StatusBadRequest, "direction must be 'up' or 'down'")
		return
	}

	if req.Direction == "up" {
		h.store.Upvote(req.OfferID)
	} else {
		h.store.Downvote(req.OfferID)
	}

	resp := CreateVoteResponse{
		OfferID:  req.OfferID,
		UserVote: h.store.UserVote(req.OfferID),
	}
	// An offer outside the accumulated set keeps its preference but
	// has no tally to report.
	if offer, ok := h.store.OfferByID(req.OfferID); ok {
		resp.Votes = offer.Votes
		resp.Loaded = true
	}

	writeJSON(w, http.StatusOK, resp)
}

type SourceVoteDeltaRequest struct {
	OfferID string `json:"offer_id"`
	Delta   int    `json:"delta"`
}

type SourceVoteDeltaResponse struct {
	OfferID string `json:"offer_id"`
	Votes   int    `json:"votes"`
}

// SourceVoteDelta handles POST /api/source/votes/delta
func (h *Handler) SourceVoteDelta(w http.ResponseWriter, r *http.Request) {
	var req SourceVoteDeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.OfferID == "" {
		writeError(w, http.StatusBadRequest, "offer_id required")
		return
	}
	if req.Delta < -2 || req.Delta > 2 || req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "delta must be ±1 or ±2")
		return
	}

	total, err := h.src.ApplyVoteDelta(r.Context(), req.OfferID, req.Delta)
	if err != nil {
		h.log.Warn("source vote delta failed", "offer", req.OfferID, "delta", req.Delta, "error", err)
		writeError(w, http.StatusBadGateway, "source error")
		return
	}

	writeJSON(w, http.StatusOK, SourceVoteDeltaResponse{
		OfferID: req.OfferID,
		Votes:   total,
	})
}
