// Package conversation owns ordered message history per conversation, the
// per-owner index and title derivation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/mygpt/internal/common"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	titleMaxRunes = 40
)

// ErrOutOfOrder is returned when an append would break user/assistant
// alternation or loses a race against another append.
var ErrOutOfOrder = errors.New("conversation: messages out of order")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// ModelUsed is set on assistant messages; empty for the synthetic
	// failure notice.
	ModelUsed string `json:"model_used,omitempty"`
	Seq       int    `json:"seq"`
}

type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   *uint64   `json:"-"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) IsGuest() bool { return c.OwnerID == nil }

type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is safe for concurrent use. Append is the only mutator of history.
type Store interface {
	Create(ctx context.Context, ownerID *uint64) (*Conversation, error)
	Get(ctx context.Context, id string, requesterID uint64) (*Conversation, error)
	Append(ctx context.Context, id string, requesterID uint64, msgs ...Message) error
	ListForOwner(ctx context.Context, ownerID uint64) ([]Summary, error)
	Delete(ctx context.Context, id string, requesterID uint64) error
	PurgeGuests(ctx context.Context, olderThan time.Time) (int, error)
}

// checkAccess applies the ownership rules. requesterID 0 is a guest.
func checkAccess(ownerID *uint64, requesterID uint64) error {
	if ownerID == nil {
		if requesterID != 0 {
			return common.ErrForbidden
		}
		return nil
	}
	if requesterID == 0 {
		return common.ErrUnauthorized
	}
	if *ownerID != requesterID {
		return common.ErrForbidden
	}
	return nil
}

// validateAppend checks msgs continue the alternation after lastRole ("" for
// an empty conversation).
func validateAppend(lastRole string, msgs []Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: nothing to append", common.ErrValidation)
	}
	expect := RoleUser
	if lastRole == RoleUser {
		expect = RoleAssistant
	}
	for i, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: unknown role %q", common.ErrValidation, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: message %d has empty content", common.ErrValidation, i)
		}
		if m.Role != expect {
			return fmt.Errorf("%w: got %s, want %s", ErrOutOfOrder, m.Role, expect)
		}
		if m.Role == RoleUser && m.ModelUsed != "" {
			return fmt.Errorf("%w: user message with model_used", common.ErrValidation)
		}
		if expect == RoleUser {
			expect = RoleAssistant
		} else {
			expect = RoleUser
		}
	}
	return nil
}

// DeriveTitle returns the first titleMaxRunes characters of msg, cut back to
// the last word boundary when the message is longer.
func DeriveTitle(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(msg) <= titleMaxRunes {
		return msg
	}
	runes := []rune(msg)
	cut := string(runes[:titleMaxRunes])
	// next rune is a space: the cut already ends on a word
	if runes[titleMaxRunes] == ' ' {
		return strings.TrimSpace(cut)
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func newID() (string, error) {
	id, err := common.NewULID()
	if err != nil {
		return "", fmt.Errorf("conversation id: %w", err)
	}
	return id, nil
}

func guestExpired(c *Conversation, ttl time.Duration, now time.Time) bool {
	return c.OwnerID == nil && ttl > 0 && now.Sub(c.UpdatedAt) > ttl
}
