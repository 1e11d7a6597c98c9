package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/suPer8Hu/mygpt/internal/common"
)

// MemoryStore keeps conversations in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]*Conversation
	guestTTL time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store. Guest conversations idle for longer
// than guestTTL read as not found; 0 disables expiry.
func NewMemoryStore(guestTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]*Conversation),
		guestTTL: guestTTL,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID *uint64) (*Conversation, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	if ownerID != nil {
		owner := *ownerID
		c.OwnerID = &owner
	}

	s.mu.Lock()
	s.convs[id] = c
	s.mu.Unlock()
	return cloneConversation(c), nil
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(id string, requesterID uint64) (*Conversation, error) {
	c, ok := s.convs[id]
	if !ok || guestExpired(c, s.guestTTL, s.now()) {
		return nil, common.ErrNotFound
	}
	if err := checkAccess(c.OwnerID, requesterID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string, requesterID uint64) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(id, requesterID)
	if err != nil {
		return nil, err
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, requesterID uint64, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id, requesterID)
	if err != nil {
		return err
	}
	lastRole := ""
	if n := len(c.Messages); n > 0 {
		lastRole = c.Messages[n-1].Role
	}
	if err := validateAppend(lastRole, msgs); err != nil {
		return err
	}

	now := s.now().UTC()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		m.Seq = len(c.Messages) + 1
		c.Messages = append(c.Messages, m)
	}
	if c.Title == "" && msgs[0].Role == RoleUser && len(c.Messages) == len(msgs) {
		c.Title = DeriveTitle(msgs[0].Content)
	}
	c.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListForOwner(ctx context.Context, ownerID uint64) ([]Summary, error) {
	s.mu.RLock()
	out := make([]Summary, 0)
	for _, c := range s.convs {
		if c.OwnerID == nil || *c.OwnerID != ownerID {
			continue
		}
		out = append(out, Summary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		// ULIDs sort by creation time
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, requesterID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(id, requesterID); err != nil {
		return err
	}
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) PurgeGuests(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.convs {
		if c.OwnerID == nil && c.UpdatedAt.Before(olderThan) {
			delete(s.convs, id)
			n++
		}
	}
	return n, nil
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		out.OwnerID = &owner
	}
	out.Messages = append([]Message(nil), c.Messages...)
	return &out
}
