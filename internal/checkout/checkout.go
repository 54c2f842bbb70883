// Package checkout simulates the purchase flow: orders are confirmed
// immediately and kept in memory, there is no payment or stock.
package checkout

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swapgrid/swapgrid/internal/feed"
)

var (
	ErrOfferUnknown = errors.New("checkout: offer not in the current feed")
	ErrOrderUnknown = errors.New("checkout: order not found")
)

// Buyer holds the details collected by the checkout form.
type Buyer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// Order is a confirmed simulated purchase.
type Order struct {
	ID         string    `json:"id"`
	OfferID    string    `json:"offer_id"`
	OfferTitle string    `json:"offer_title"`
	Total      float64   `json:"total"`
	Currency   string    `json:"currency"`
	Buyer      Buyer     `json:"buyer"`
	PlacedAt   time.Time `json:"placed_at"`
}

// Service places and looks up orders against the session's feed store.
type Service struct {
	store *feed.Store
	log   *slog.Logger

	mu     sync.Mutex
	orders map[string]*Order
}

func NewService(store *feed.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:  store,
		log:    log,
		orders: make(map[string]*Order),
	}
}

// PlaceOrder confirms a purchase of an offer from the accumulated
// feed. The offer must already be loaded; checkout never fetches.
func (s *Service) PlaceOrder(offerID string, buyer Buyer) (*Order, error) {
	if strings.TrimSpace(buyer.Name) == "" {
		return nil, fmt.Errorf("checkout: buyer name is required")
	}

	offer, ok := s.store.OfferByID(offerID)
	if !ok {
		return nil, ErrOfferUnknown
	}

	order := &Order{
		ID:         uuid.New().String(),
		OfferID:    offer.ID,
		OfferTitle: offer.Title,
		Total:      offer.Price,
		Currency:   offer.Currency,
		Buyer:      buyer,
		PlacedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()

	s.log.Info("order placed", "order", order.ID, "offer", offer.ID, "total", order.Total, "currency", order.Currency)
	return order, nil
}

// Order returns a previously placed order.
func (s *Service) Order(id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderUnknown
	}
	cp := *o
	return &cp, nil
}
