// Package feed implements the offer feed store: it accumulates offers
// across pages fetched from a data source, applies optimistic vote
// toggles with rollback on failed reconciliation, and persists the
// user's vote preferences to a durable slot.
package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/swapgrid/swapgrid/internal/prefs"
	"github.com/swapgrid/swapgrid/internal/source"
)

// DefaultPageSize is the feed page size used when none is configured.
const DefaultPageSize = 10

// Store owns the accumulated offer set, the pagination cursor and the
// user's vote set. All consumer access goes through snapshot accessors;
// nothing hands out pointers into store-owned state.
type Store struct {
	src      source.Source
	slot     prefs.Slot
	log      *slog.Logger
	pageSize int

	mu        sync.Mutex
	offers    []*source.Offer // insertion order
	byID      map[string]*source.Offer
	votes     map[string]int // offer id -> +1 or -1
	voteOrder []string       // offer ids in first-vote order
	nextPage  int
	loading   bool
	hasMore   bool
	lastErr   string

	subs    map[int]func()
	nextSub int

	reconciling sync.WaitGroup
}

// New builds a store around the given source and preference slot. A
// stored vote set that cannot be loaded fails open to an empty set.
func New(src source.Source, slot prefs.Slot, pageSize int, log *slog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		src:      src,
		slot:     slot,
		log:      log,
		pageSize: pageSize,
		byID:     make(map[string]*source.Offer),
		votes:    make(map[string]int),
		hasMore:  true, // optimistic until the first page says otherwise
		subs:     make(map[int]func()),
	}

	stored, err := slot.Load()
	if err != nil {
		log.Warn("stored votes unreadable, starting with empty vote set", "error", err)
		return s
	}
	for _, v := range stored {
		if v.Value != 1 && v.Value != -1 {
			continue
		}
		if _, dup := s.votes[v.OfferID]; dup {
			continue
		}
		s.votes[v.OfferID] = v.Value
		s.voteOrder = append(s.voteOrder, v.OfferID)
	}

	return s
}

// LoadNextPage fetches the next feed page and merges it into the
// accumulated set. It is a silent no-op while a fetch is in flight or
// once the source has reported the feed exhausted. A fetch failure is
// recorded in the store state and returned; the cursor stays put, so
// the next call retries the same page.
func (s *Store) LoadNextPage(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	page := s.nextPage
	size := s.pageSize
	s.mu.Unlock()
	s.notify()

	p, err := s.src.FetchPage(ctx, page, size)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.log.Warn("page fetch failed", "page", page, "error", err)
		s.notify()
		return err
	}

	s.lastErr = ""
	for _, o := range p.Offers {
		if _, seen := s.byID[o.ID]; seen {
			continue
		}
		cp := *o
		s.byID[cp.ID] = &cp
		s.offers = append(s.offers, &cp)
	}
	s.nextPage = page + 1
	s.hasMore = p.HasMore
	s.mu.Unlock()

	s.log.Debug("page merged", "page", page, "received", len(p.Offers), "has_more", p.HasMore)
	s.notify()
	return nil
}

// Offers returns the accumulated set sorted by votes descending. Equal
// vote counts keep their insertion order.
func (s *Store) Offers() []*source.Offer {
	s.mu.Lock()
	out := make([]*source.Offer, len(s.offers))
	for i, o := range s.offers {
		cp := *o
		out[i] = &cp
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Votes > out[j].Votes
	})
	return out
}

// OfferByID looks an offer up in the accumulated set. It never asks
// the source for offers that have not been paged in yet.
func (s *Store) OfferByID(id string) (*source.Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// Loading reports whether a page fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last fetch failure message, or "" if the most
// recent fetch succeeded.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// HasMore reports whether the source has more pages. It is true before
// the first fetch completes so an empty session still loads.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// UserVote returns +1, -1 or 0 for the given offer.
func (s *Store) UserVote(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes[id]
}

// UserVotes returns the full vote set in first-vote order.
func (s *Store) UserVotes() []prefs.UserVote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userVotesLocked()
}

func (s *Store) userVotesLocked() []prefs.UserVote {
	out := make([]prefs.UserVote, 0, len(s.voteOrder))
	for _, id := range s.voteOrder {
		out = append(out, prefs.UserVote{OfferID: id, Value: s.votes[id]})
	}
	return out
}

// Upvote toggles an upvote on the offer per the vote table: no vote
// becomes +1, an existing upvote is removed, a downvote switches.
func (s *Store) Upvote(id string) {
	s.vote(id, 1)
}

// Downvote is the symmetric counterpart of Upvote.
func (s *Store) Downvote(id string) {
	s.vote(id, -1)
}

func (s *Store) vote(id string, dir int) {
	s.mu.Lock()

	cur := s.votes[id]
	var next, delta int
	switch {
	case cur == 0:
		next, delta = dir, dir
	case cur == dir:
		next, delta = 0, -dir
	default:
		next, delta = dir, 2*dir
	}

	if next == 0 {
		delete(s.votes, id)
		for i, v := range s.voteOrder {
			if v == id {
				s.voteOrder = append(s.voteOrder[:i], s.voteOrder[i+1:]...)
				break
			}
		}
	} else {
		if cur == 0 {
			s.voteOrder = append(s.voteOrder, id)
		}
		s.votes[id] = next
	}

	// Optimistic tally update. An offer that is not in the accumulated
	// set gets no tally, but the preference bookkeeping above stands.
	if o, ok := s.byID[id]; ok {
		o.Votes += delta
	}

	// Persist under the lock: saved snapshots must reach the slot in
	// vote order, or a slow save can clobber a newer one.
	if err := s.slot.Save(s.userVotesLocked()); err != nil {
		s.log.Warn("persisting votes failed", "offer", id, "error", err)
	}
	s.mu.Unlock()

	s.notify()

	s.reconciling.Add(1)
	go s.reconcile(id, delta)
}

// reconcile pushes a vote delta to the source. On failure only the
// optimistic tally is reverted; the recorded preference and its
// persisted copy stay as the user set them.
func (s *Store) reconcile(id string, delta int) {
	defer s.reconciling.Done()

	if _, err := s.src.ApplyVoteDelta(context.Background(), id, delta); err != nil {
		s.mu.Lock()
		if o, ok := s.byID[id]; ok {
			o.Votes -= delta
		}
		s.mu.Unlock()
		s.log.Warn("vote reconciliation failed, tally reverted", "offer", id, "delta", delta, "error", err)
		s.notify()
	}
}

// Wait blocks until every dispatched vote reconciliation has settled.
func (s *Store) Wait() {
	s.reconciling.Wait()
}

// Subscribe registers fn to run after every state change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Snapshot is a consistent read of the full store state.
type Snapshot struct {
	Offers    []*source.Offer  `json:"offers"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
	HasMore   bool             `json:"has_more"`
	UserVotes []prefs.UserVote `json:"user_votes"`
}

// Snapshot returns the sorted feed together with the loading, error,
// pagination and vote state the presentation layer renders from.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Offers:    make([]*source.Offer, len(s.offers)),
		Loading:   s.loading,
		Error:     s.lastErr,
		HasMore:   s.hasMore,
		UserVotes: s.userVotesLocked(),
	}
	for i, o := range s.offers {
		cp := *o
		snap.Offers[i] = &cp
	}
	s.mu.Unlock()

	sort.SliceStable(snap.Offers, func(i, j int) bool {
		return snap.Offers[i].Votes > snap.Offers[j].Votes
	})
	return snap
}
