package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Remote is an offer source backed by another swapgrid instance's
// source passthrough API (/api/source/...).
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (r *Remote) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.httpClient.Do(req)
}

func (r *Remote) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	resp, err := r.doRequest(ctx, http.MethodGet, "/api/source/offers?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteError("fetch page", resp)
	}

	var p Page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("remote: decode page: %w", err)
	}
	return &p, nil
}

func (r *Remote) FetchByID(ctx context.Context, id string) (*Offer, error) {
	resp, err := r.doRequest(ctx, http.MethodGet, "/api/source/offers/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError("fetch offer", resp)
	}

	var o Offer
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return nil, fmt.Errorf("remote: decode offer: %w", err)
	}
	return &o, nil
}

func (r *Remote) ApplyVoteDelta(ctx context.Context, id string, delta int) (int, error) {
	body, _ := json.Marshal(map[string]any{
		"offer_id": id,
		"delta":    delta,
	})

	resp, err := r.doRequest(ctx, http.MethodPost, "/api/source/votes/delta", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, remoteError("apply vote delta", resp)
	}

	var out struct {
		Votes int `json:"votes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("remote: decode vote total: %w", err)
	}
	return out.Votes, nil
}

func (r *Remote) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func remoteError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("remote: %s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(b))
}

var _ Source = (*Remote)(nil)
