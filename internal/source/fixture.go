package source

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed data/offers.json
var defaultFixture []byte

//go:embed data/offer.schema.json
var offerSchema []byte

// Fixture serves offers from a static JSON document and keeps vote
// totals in an in-memory cache, optionally adding artificial latency to
// every call so clients exercise their loading states.
type Fixture struct {
	latency time.Duration

	mu     sync.Mutex
	offers []*Offer       // fixture order
	byID   map[string]*Offer
	totals map[string]int // vote-total cache, seeded from the fixture
}

// FixtureConfig configures a Fixture source.
type FixtureConfig struct {
	// Path points at a JSON offers file. Empty means the embedded fixture.
	Path string
	// Latency is added to every source call. Zero disables the delay.
	Latency time.Duration
}

// NewFixture loads and validates the fixture document.
func NewFixture(cfg FixtureConfig) (*Fixture, error) {
	raw := defaultFixture
	if cfg.Path != "" {
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		raw = b
	}

	if err := validateFixture(raw); err != nil {
		return nil, err
	}

	var offers []*Offer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	f := &Fixture{
		latency: cfg.Latency,
		offers:  offers,
		byID:    make(map[string]*Offer, len(offers)),
		totals:  make(map[string]int, len(offers)),
	}
	for _, o := range offers {
		if _, dup := f.byID[o.ID]; dup {
			return nil, fmt.Errorf("fixture: duplicate offer id %q", o.ID)
		}
		f.byID[o.ID] = o
		f.totals[o.ID] = o.Votes
	}
	return f, nil
}

func validateFixture(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("offers.schema.json", bytes.NewReader(offerSchema)); err != nil {
		return fmt.Errorf("fixture schema: %w", err)
	}
	schema, err := compiler.Compile("offers.schema.json")
	if err != nil {
		return fmt.Errorf("compile fixture schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("fixture is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("fixture failed schema validation: %w", err)
	}
	return nil
}

// wait simulates server latency, honoring context cancellation.
func (f *Fixture) wait(ctx context.Context) error {
	if f.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fixture) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if page < 0 || pageSize <= 0 {
		return nil, fmt.Errorf("fixture: invalid page request (page=%d size=%d)", page, pageSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	total := len(f.offers)
	start := page * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]*Offer, 0, end-start)
	for _, o := range f.offers[start:end] {
		out = append(out, f.snapshot(o))
	}

	return &Page{
		Offers:   out,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  end < total,
	}, nil
}

func (f *Fixture) FetchByID(ctx context.Context, id string) (*Offer, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f.snapshot(o), nil
}

func (f *Fixture) ApplyVoteDelta(ctx context.Context, id string, delta int) (int, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Unknown ids fall back to a zero total rather than failing.
	f.totals[id] += delta
	return f.totals[id], nil
}

func (f *Fixture) Close() error { return nil }

// snapshot copies an offer with its current cached vote total. Callers
// own the copy and may mutate it freely.
func (f *Fixture) snapshot(o *Offer) *Offer {
	cp := *o
	cp.Votes = f.totals[o.ID]
	return &cp
}

var _ Source = (*Fixture)(nil)

// EmbeddedOffers decodes the embedded fixture document. Used to seed
// other source backends.
func EmbeddedOffers() ([]*Offer, error) {
	var offers []*Offer
	if err := json.Unmarshal(defaultFixture, &offers); err != nil {
		return nil, fmt.Errorf("decode embedded fixture: %w", err)
	}
	return offers, nil
}
