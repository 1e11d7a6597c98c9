package conversation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/suPer8Hu/mygpt/internal/common"
	"gorm.io/gorm"
)

type conversationRow struct {
	ID           string    `gorm:"primaryKey;size:26"` // ULID length
	OwnerID      *uint64   `gorm:"index"`
	Title        string    `gorm:"type:varchar(64);not null;default:''"`
	MessageCount int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"index;not null"`
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:26;not null;uniqueIndex:uniq_conv_msg_seq,priority:1"`
	Seq            int       `gorm:"not null;uniqueIndex:uniq_conv_msg_seq,priority:2"`
	Role           string    `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:text;not null"`
	ModelUsed      string    `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "conversation_messages" }

// Models lists the tables GormStore needs migrated.
func Models() []any {
	return []any{&conversationRow{}, &messageRow{}}
}

// GormStore persists conversations through gorm. Appends run in a transaction
// that advances message_count with a compare-and-set, so concurrent writers
// in other processes cannot interleave.
type GormStore struct {
	db       *gorm.DB
	guestTTL time.Duration
	now      func() time.Time
}

func NewGormStore(db *gorm.DB, guestTTL time.Duration) *GormStore {
	return &GormStore{db: db, guestTTL: guestTTL, now: time.Now}
}

func (s *GormStore) Create(ctx context.Context, ownerID *uint64) (*Conversation, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	row := conversationRow{ID: id, CreatedAt: now, UpdatedAt: now}
	if ownerID != nil {
		owner := *ownerID
		row.OwnerID = &owner
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return row.toConversation(nil), nil
}

func (s *GormStore) loadRow(tx *gorm.DB, id string, requesterID uint64) (*conversationRow, error) {
	var row conversationRow
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, errors.Wrap(err, "load conversation")
	}
	if row.OwnerID == nil && s.guestTTL > 0 && s.now().Sub(row.UpdatedAt) > s.guestTTL {
		return nil, common.ErrNotFound
	}
	if err := checkAccess(row.OwnerID, requesterID); err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) Get(ctx context.Context, id string, requesterID uint64) (*Conversation, error) {
	db := s.db.WithContext(ctx)
	row, err := s.loadRow(db, id, requesterID)
	if err != nil {
		return nil, err
	}
	var msgs []messageRow
	if err := db.Where("conversation_id = ?", id).Order("seq ASC").Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return row.toConversation(msgs), nil
}

func (s *GormStore) Append(ctx context.Context, id string, requesterID uint64, msgs ...Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.loadRow(tx, id, requesterID)
		if err != nil {
			return err
		}

		lastRole := ""
		if row.MessageCount > 0 {
			var last messageRow
			if err := tx.Where("conversation_id = ?", id).Order("seq DESC").First(&last).Error; err != nil {
				return errors.Wrap(err, "load last message")
			}
			lastRole = last.Role
		}
		if err := validateAppend(lastRole, msgs); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"message_count": row.MessageCount + len(msgs),
			"updated_at":    now,
		}
		if row.Title == "" && row.MessageCount == 0 {
			updates["title"] = DeriveTitle(msgs[0].Content)
		}
		res := tx.Model(&conversationRow{}).
			Where("id = ? AND message_count = ?", id, row.MessageCount).
			Updates(updates)
		if res.Error != nil {
			return errors.Wrap(res.Error, "advance conversation")
		}
		if res.RowsAffected == 0 {
			return ErrOutOfOrder
		}

		rows := make([]messageRow, 0, len(msgs))
		for i, m := range msgs {
			ts := m.Timestamp
			if ts.IsZero() {
				ts = now
			}
			rows = append(rows, messageRow{
				ConversationID: id,
				Seq:            row.MessageCount + i + 1,
				Role:           m.Role,
				Content:        m.Content,
				ModelUsed:      m.ModelUsed,
				CreatedAt:      ts,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrOutOfOrder
			}
			return errors.Wrap(err, "insert messages")
		}
		return nil
	})
}

func (s *GormStore) ListForOwner(ctx context.Context, ownerID uint64) ([]Summary, error) {
	var rows []conversationRow
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			ID:           r.ID,
			Title:        r.Title,
			MessageCount: r.MessageCount,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, id string, requesterID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadRow(tx, id, requesterID); err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&messageRow{}).Error; err != nil {
			return errors.Wrap(err, "delete messages")
		}
		if err := tx.Where("id = ?", id).Delete(&conversationRow{}).Error; err != nil {
			return errors.Wrap(err, "delete conversation")
		}
		return nil
	})
}

func (s *GormStore) PurgeGuests(ctx context.Context, olderThan time.Time) (int, error) {
	var purged int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&conversationRow{}).
			Where("owner_id IS NULL AND updated_at < ?", olderThan.UTC()).
			Pluck("id", &ids).Error; err != nil {
			return errors.Wrap(err, "find idle guests")
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&messageRow{}).Error; err != nil {
			return errors.Wrap(err, "purge guest messages")
		}
		res := tx.Where("id IN ?", ids).Delete(&conversationRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "purge guest conversations")
		}
		purged = int(res.RowsAffected)
		return nil
	})
	return purged, err
}

func (r *conversationRow) toConversation(msgs []messageRow) *Conversation {
	c := &Conversation{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Messages:  make([]Message, 0, len(msgs)),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, m := range msgs {
		c.Messages = append(c.Messages, Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
			ModelUsed: m.ModelUsed,
			Seq:       m.Seq,
		})
	}
	return c
}
