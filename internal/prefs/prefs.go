// Package prefs stores the device-local user's vote preferences in a
// single durable slot, mirroring a browser localStorage entry: one
// fixed key, value is a JSON array of {offerId, voteType} pairs.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SlotName is the fixed storage key shared by every session on the
// same device.
const SlotName = "swapgrid_user_votes"

// UserVote records one vote preference. Value is 1 (up) or -1 (down);
// "no vote" is the absence of an entry, never a zero value.
type UserVote struct {
	OfferID string `json:"offerId"`
	Value   int    `json:"voteType"`
}

// Slot is a durable key-value slot holding the full vote set.
type Slot interface {
	Load() ([]UserVote, error)
	Save(votes []UserVote) error
}

// FileSlot persists votes to a JSON file. Writes go through a temp
// file and rename so a crash mid-save cannot corrupt the slot.
type FileSlot struct {
	path string
}

// NewFileSlot creates a slot at dir/<SlotName>.json.
func NewFileSlot(dir string) *FileSlot {
	return &FileSlot{path: filepath.Join(dir, SlotName+".json")}
}

// Path returns the backing file path.
func (s *FileSlot) Path() string { return s.path }

func (s *FileSlot) Load() ([]UserVote, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read slot: %w", err)
	}

	var votes []UserVote
	if err := json.Unmarshal(raw, &votes); err != nil {
		return nil, fmt.Errorf("prefs: decode slot: %w", err)
	}
	return votes, nil
}

func (s *FileSlot) Save(votes []UserVote) error {
	if votes == nil {
		votes = []UserVote{}
	}
	raw, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("prefs: encode slot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("prefs: write slot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("prefs: replace slot: %w", err)
	}
	return nil
}

// MemorySlot keeps votes in process memory. Used in tests and for
// ephemeral sessions that should not leave state behind.
type MemorySlot struct {
	mu    sync.Mutex
	votes []UserVote
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Load() ([]UserVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserVote, len(s.votes))
	copy(out, s.votes)
	return out, nil
}

func (s *MemorySlot) Save(votes []UserVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = make([]UserVote, len(votes))
	copy(s.votes, votes)
	return nil
}

var (
	_ Slot = (*FileSlot)(nil)
	_ Slot = (*MemorySlot)(nil)
)
