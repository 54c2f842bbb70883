package source

import (
	"context"
	"errors"
	"time"
)

// Offer is a listed second-hand item. Votes is the only field that
// changes after creation; everything else is stable for the record's
// lifetime.
type Offer struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Seller      string    `json:"seller,omitempty"`
	Condition   Condition `json:"condition"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image_url,omitempty"`
	Votes       int       `json:"votes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Condition describes the wear state of an offered item.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like-new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
)

// Valid reports whether c is one of the known condition values.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair:
		return true
	}
	return false
}

// Page is one slice of the offer feed plus pagination metadata.
type Page struct {
	Offers   []*Offer `json:"offers"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	HasMore  bool     `json:"has_more"`
}

// ErrNotFound is returned by FetchByID for ids the source has no record of.
var ErrNotFound = errors.New("source: offer not found")

// Source defines the offer data source contract. It may be backed by a
// local fixture, a database, or a remote API; callers do not care which.
type Source interface {
	// FetchPage returns the page-th slice of the feed (0-based).
	FetchPage(ctx context.Context, page, pageSize int) (*Page, error)

	// FetchByID returns a single offer or ErrNotFound.
	FetchByID(ctx context.Context, id string) (*Offer, error)

	// ApplyVoteDelta adds delta to the source's last-known vote total
	// for the offer and returns the new total. Unknown ids start from
	// a total of 0 rather than failing.
	ApplyVoteDelta(ctx context.Context, id string, delta int) (int, error)

	// Close releases any resources held by the source.
	Close() error
}
