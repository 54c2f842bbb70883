package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/swapgrid/swapgrid/internal/prefs"
	"github.com/swapgrid/swapgrid/internal/source"
)

type appliedDelta struct {
	id    string
	delta int
}

// stubSource is a scriptable offer source for store tests.
type stubSource struct {
	mu         sync.Mutex
	pages      []*source.Page
	pageErr    error
	voteErr    error
	fetchCalls int
	deltas     []appliedDelta
	gate       chan struct{} // when set, FetchPage blocks until closed
}

func (s *stubSource) FetchPage(ctx context.Context, page, pageSize int) (*source.Page, error) {
	s.mu.Lock()
	s.fetchCalls++
	gate := s.gate
	err := s.pageErr
	var p *source.Page
	if err == nil {
		if page < len(s.pages) {
			p = s.pages[page]
		} else {
			p = &source.Page{Page: page, PageSize: pageSize}
		}
	}
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *stubSource) FetchByID(ctx context.Context, id string) (*source.Offer, error) {
	return nil, source.ErrNotFound
}

func (s *stubSource) ApplyVoteDelta(ctx context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voteErr != nil {
		return 0, s.voteErr
	}
	s.deltas = append(s.deltas, appliedDelta{id: id, delta: delta})
	return delta, nil
}

func (s *stubSource) Close() error { return nil }

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *stubSource) applied() []appliedDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appliedDelta, len(s.deltas))
	copy(out, s.deltas)
	return out
}

func offer(id string, votes int) *source.Offer {
	return &source.Offer{
		ID:        id,
		Title:     "Offer " + id,
		Condition: source.ConditionGood,
		Price:     10,
		Currency:  "EUR",
		Votes:     votes,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func onePage(offers ...*source.Offer) []*source.Page {
	return []*source.Page{{
		Offers:   offers,
		Total:    len(offers),
		Page:     0,
		PageSize: len(offers),
		HasMore:  false,
	}}
}

func loadPage(t *testing.T, s *Store) {
	t.Helper()
	if err := s.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("failed to load page: %v", err)
	}
}

func TestOffersSortedByVotesDescending(t *testing.T) {
	src := &stubSource{pages: onePage(
		offer("a", 3),
		offer("b", 9),
		offer("c", 1),
	)}
	s := New(src, prefs.NewMemorySlot(), 10, nil)
	loadPage(t, s)

	offers := s.Offers()
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(offers))
	}
	for _, want := range []string{"b", "a", "c"} {
		got := offers[0].ID
		if got != want {
			t.Errorf("offer order: got %q, want %q", got, want)
		}
		offers = offers[1:]
	}
}

func TestSortStabilityOnEqualVotes(t *testing.T) {
	// a, b, c arrive with equal votes; their relative order must
	// survive recomputation after an unrelated vote change.
	src := &stubSource{pages: onePage(
		offer("a", 5),
		offer("b", 5),
		offer("c", 5),
		offer("d", 0),
	)}
	s := New(src, prefs.NewMemorySlot(), 10, nil)
	loadPage(t, s)

	s.Upvote("d")
	s.Wait()

	offers := s.Offers()
	var equal []string
	for _, o := range offers {
		if o.Votes == 5 {
			equal = append(equal, o.ID)
		}
	}
	if len(equal) != 3 || equal[0] != "a" || equal[1] != "b" || equal[2] != "c" {
		t.Errorf("equal-vote offers reordered: %v", equal)
	}
}

func TestUpvoteToggleSymmetry(t *testing.T) {
	src := &stubSource{pages: onePage(offer("a", 7))}
	s := New(src, prefs.NewMemorySlot(), 10, nil)
	loadPage(t, s)

	s.Upvote("a")
	if o, _ := s.OfferByID("a"); o.Votes != 8 {
		t.Errorf("after upvote: votes = %d, want 8", o.Votes)
	}
	if v := s.UserVote("a"); v != 1 {
		t.Errorf("after upvote: user vote = %d, want 1", v)
	}
	s.Wait() // settle the first delta before the toggle-off dispatches

	s.Upvote("a")
	if o, _ := s.OfferByID("a"); o.Votes != 7 {
		t.Errorf("after toggle off: votes = %d, want 7", o.Votes)
	}
	if v := s.UserVote("a"); v != 0 {
		t.Errorf("after toggle off: user vote = %d, want 0", v)
	}

	s.Wait()
	deltas := src.applied()
	if len(deltas) != 2 || deltas[0].delta != 1 || deltas[1].delta != -1 {
		t.Errorf("reconciled deltas = %v, want [+1 -1]", deltas)
	}
}

func TestCrossToggleArithmetic(t *testing.T) {
	src := &stubSource{pages: onePage(offer("a", 10))}
	s := New(src, prefs.NewMemorySlot(), 10, nil)
	loadPage(t, s)

	s.Upvote("a") // 11
	s.Wait()
	s.Downvote("a")

	if o, _ := s.OfferByID("a"); o.Votes != 9 {
		t.Errorf("votes = %d, want 9", o.Votes)
	}
	if v := s.UserVote("a"); v != -1 {
		t.Errorf("user vote = %d, want -1", v)
	}

	s.Wait()
	deltas := src.applied()
	if len(deltas) != 2 || deltas[0].delta != 1 || deltas[1].delta != -2 {
		t.Errorf("reconciled deltas = %v, want [+1 -2]", deltas)
	}
}

func TestPaginationAccumulation(t *testing.T) {
	src := &stubSource{pages: []*source.Page{
		{Offers: []*source.Offer{offer("a", 1)}, Total: 2, Page: 0, PageSize: 1, HasMore: true},
		{Offers: []*source.Offer{offer("b", 2)}, Total: 2, Page: 1, PageSize: 1, HasMore: false},
	}}
	s := New(src, prefs.NewMemorySlot(), 1, nil)

	loadPage(t, s)
	if !s.HasMore() {
		t.Fatal("expected more pages after page 0")
	}
	loadPage(t, s)
	if s.HasMore() {
		t.Fatal("expected feed exhausted after page 1")
	}

	offers := s.Offers()
	if len(offers) != 2 {
		t.Fatalf("expected 2 accumulated offers, got %d", len(offers))
	}

	// Exhausted feed: further calls must not hit the source.
	if err := s.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("no-op load returned error: %v", err)
	}
	if src.calls() != 2 {
		t.Errorf("source fetch calls = %d, want 2", src.calls())
	}
}

func TestLoadingMutex(t *testing.T) {
	gate := make(chan struct{})
	src := &stubSource{
		pages: onePage(offer("a", 1)),
		gate:  gate,
	}
	s := New(src, prefs.NewMemorySlot(), 10, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.LoadNextPage(context.Background())
	}()

	waitFor(t, func() bool { return s.Loading() })

	// Duplicate call while loading: returns immediately, no second fetch.
	if err := s.LoadNextPage(context.Background()); err != nil {
		t.Fatalf("duplicate load returned error: %v", err)
	}
	if src.calls() != 1 {
		t.Errorf("source fetch calls while loading = %d, want 1", src.calls())
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Loading() {
		t.Error("loading should be false after completion")
	}
}

func TestFetchFailureKeepsCursorAndSet(t *testing.T) {
	src := &stubSource{pages: []*source.Page{
		{Offers: []*source.Offer{offer("a", 1)}, Total: 2, Page: 0, PageSize: 1, HasMore: true},
		{Offers: []*source.Offer{offer("b", 2)}, Total: 2, Page: 1, PageSize: 1, HasMore: false},
	}}
	s := New(src, prefs.NewMemorySlot(), 1, nil)
	loadPage(t, s)

	src.mu.Lock()
	src.pageErr = errors.New("network down")
	src.mu.Unlock()

	if err := s.LoadNextPage(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if s.Err() == "" {
		t.Error("expected error state after failed fetch")
	}
	if s.Loading() {
		t.Error("loading should clear after failure")
	}
	if len(s.Offers()) != 1 {
		t.Errorf("accumulated set changed on failure: %d offers", len(s.Offers()))
	}

	// Recovery resumes from the same page.
	src.mu.Lock()
	src.pageErr = nil
	src.mu.Unlock()

	loadPage(t, s)
	if s.Err() != "" {
		t.Errorf("error state not cleared on success: %q", s.Err())
	}
	offers := s.Offers()
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers after retry, got %d", len(offers))
	}
}

func TestRollbackOnReconciliationFailure(t *testing.T) {
	slot := prefs.NewMemorySlot()
	src := &stubSource{
		pages:   onePage(offer("a", 10)),
		voteErr: errors.New("vote endpoint down"),
	}
	s := New(src, slot, 10, nil)
	loadPage(t, s)

	s.Upvote("a")
	s.Wait()

	// The tally rolls back, the recorded preference does not.
	if o, _ := s.OfferByID("a"); o.Votes != 10 {
		t.Errorf("votes = %d, want 10 after rollback", o.Votes)
	}
	if v := s.UserVote("a"); v != 1 {
		t.Errorf("user vote = %d, want 1 (preference kept)", v)
	}

	stored, err := slot.Load()
	if err != nil {
		t.Fatalf("slot load failed: %v", err)
	}
	if len(stored) != 1 || stored[0].OfferID != "a" || stored[0].Value != 1 {
		t.Errorf("persisted votes = %v, want [{a 1}]", stored)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	slot := prefs.NewMemorySlot()
	src := &stubSource{pages: onePage(offer("a", 3))}

	s := New(src, slot, 10, nil)
	loadPage(t, s)
	s.Upvote("a")
	s.Wait()

	fresh := New(&stubSource{}, slot, 10, nil)
	if v := fresh.UserVote("a"); v != 1 {
		t.Errorf("fresh store user vote = %d, want 1", v)
	}
}

func TestVoteOnUnloadedOffer(t *testing.T) {
	slot := prefs.NewMemorySlot()
	src := &stubSource{}
	s := New(src, slot, 10, nil)

	s.Downvote("ghost")
	s.Wait()

	if v := s.UserVote("ghost"); v != -1 {
		t.Errorf("user vote = %d, want -1", v)
	}
	if _, ok := s.OfferByID("ghost"); ok {
		t.Error("voting must not create offers")
	}

	// The reconciliation delta still goes out.
	deltas := src.applied()
	if len(deltas) != 1 || deltas[0].id != "ghost" || deltas[0].delta != -1 {
		t.Errorf("reconciled deltas = %v, want [{ghost -1}]", deltas)
	}
}

func TestNotFoundLookup(t *testing.T) {
	src := &stubSource{pages: onePage(offer("a", 1))}
	s := New(src, prefs.NewMemorySlot(), 10, nil)
	loadPage(t, s)

	if _, ok := s.OfferByID("never-fetched"); ok {
		t.Error("expected not-found for unknown id")
	}
	// Lookup must not fall back to the source.
	if src.calls() != 1 {
		t.Errorf("source fetch calls = %d, want 1", src.calls())
	}
}

type failingSlot struct{}

func (failingSlot) Load() ([]prefs.UserVote, error) {
	return nil, errors.New("corrupt slot")
}

func (failingSlot) Save([]prefs.UserVote) error { return nil }

func TestCorruptSlotFailsOpen(t *testing.T) {
	src := &stubSource{pages: onePage(offer("a", 1))}
	s := New(src, failingSlot{}, 10, nil)

	if votes := s.UserVotes(); len(votes) != 0 {
		t.Errorf("expected empty vote set, got %v", votes)
	}
	loadPage(t, s)
	s.Upvote("a")
	if v := s.UserVote("a"); v != 1 {
		t.Errorf("store unusable after corrupt slot: user vote = %d", v)
	}
	s.Wait()
}

func TestStoredVotesSanitized(t *testing.T) {
	slot := prefs.NewMemorySlot()
	slot.Save([]prefs.UserVote{
		{OfferID: "a", Value: 1},
		{OfferID: "a", Value: -1}, // duplicate id, first wins
		{OfferID: "b", Value: 3},  // invalid value, dropped
		{OfferID: "c", Value: -1},
	})

	s := New(&stubSource{}, slot, 10, nil)
	if v := s.UserVote("a"); v != 1 {
		t.Errorf("vote for a = %d, want 1", v)
	}
	if v := s.UserVote("b"); v != 0 {
		t.Errorf("vote for b = %d, want 0", v)
	}
	if v := s.UserVote("c"); v != -1 {
		t.Errorf("vote for c = %d, want -1", v)
	}
}

// gatedSlot records every saved snapshot and blocks the first save
// until the gate is closed.
type gatedSlot struct {
	mu      sync.Mutex
	gate    chan struct{}
	blocked bool
	saved   [][]prefs.UserVote
}

func (s *gatedSlot) Load() ([]prefs.UserVote, error) { return nil, nil }

func (s *gatedSlot) Save(votes []prefs.UserVote) error {
	s.mu.Lock()
	first := !s.blocked
	s.blocked = true
	s.mu.Unlock()

	if first {
		<-s.gate
	}

	cp := make([]prefs.UserVote, len(votes))
	copy(cp, votes)
	s.mu.Lock()
	s.saved = append(s.saved, cp)
	s.mu.Unlock()
	return nil
}

func (s *gatedSlot) last() []prefs.UserVote {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

func TestConcurrentVotesPersistInOrder(t *testing.T) {
	slot := &gatedSlot{gate: make(chan struct{})}
	src := &stubSource{pages: onePage(offer("a", 1), offer("b", 2))}
	s := New(src, slot, 10, nil)
	loadPage(t, s)

	done := make(chan struct{})
	go func() {
		s.Upvote("a")
		close(done)
	}()
	waitFor(t, func() bool {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		return slot.blocked
	})

	second := make(chan struct{})
	go func() {
		s.Upvote("b")
		close(second)
	}()

	// Give the second vote time to run before the first save is
	// released; its snapshot must not land in the slot first.
	time.Sleep(50 * time.Millisecond)
	close(slot.gate)
	<-done
	<-second
	s.Wait()

	last := slot.last()
	if len(last) != 2 {
		t.Fatalf("durable slot holds %d votes, want 2: %v", len(last), last)
	}
}

func TestSubscribeNotifies(t *testing.T) {
	src := &stubSource{pages: onePage(offer("a", 1))}
	s := New(src, prefs.NewMemorySlot(), 10, nil)

	var mu sync.Mutex
	notified := 0
	unsubscribe := s.Subscribe(func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	loadPage(t, s)
	s.Upvote("a")
	s.Wait()

	mu.Lock()
	seen := notified
	mu.Unlock()
	if seen == 0 {
		t.Error("expected change notifications")
	}

	unsubscribe()
	mu.Lock()
	before := notified
	mu.Unlock()

	s.Upvote("a")
	s.Wait()

	mu.Lock()
	after := notified
	mu.Unlock()
	if after != before {
		t.Error("unsubscribed listener still notified")
	}
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never held")
}
