// Package account stores registered users and checks their credentials.
package account

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/suPer8Hu/mygpt/internal/auth"
	"github.com/suPer8Hu/mygpt/internal/common"
	"gorm.io/gorm"
)

const maxNameLen = 64

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Name         string    `gorm:"type:varchar(64);not null;default:''" json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	return email, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", common.ErrValidation, maxNameLen)
	}
	return name, nil
}

// Register creates a user. A taken email yields common.ErrConflict.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name, err = normalizeName(name)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return nil, errors.Wrap(err, "hash password")
	}

	var cnt int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
		return nil, errors.Wrap(err, "check email")
	}
	if cnt > 0 {
		return nil, fmt.Errorf("%w: email already registered", common.ErrConflict)
	}

	u := &User{Email: email, PasswordHash: hash, Name: name}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already registered", common.ErrConflict)
		}
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Login returns the user when the credentials match. Unknown email and wrong
// password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, errors.Wrap(err, "load user")
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, common.ErrUnauthorized
	}
	return &u, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, errors.Wrap(err, "load user")
	}
	return &u, nil
}

// UpdateName changes the display name, the only mutable user field.
func (s *Service) UpdateName(ctx context.Context, id uint64, name string) (*User, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update name")
	}
	if res.RowsAffected == 0 {
		return nil, common.ErrNotFound
	}
	return s.Get(ctx, id)
}
