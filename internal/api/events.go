package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Events handles GET /api/feed/events: a server-sent event stream that
// pushes a fresh feed snapshot after every store change. Changes that
// land while a snapshot is being written are coalesced into one event.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	changed := make(chan struct{}, 1)
	unsubscribe := h.store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	send := func() {
		data, err := json.Marshal(h.store.Snapshot())
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: feed\ndata: %s\n\n", data)
		flusher.Flush()
	}

	// Initial state, then one event per change.
	send()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			send()
		}
	}
}
