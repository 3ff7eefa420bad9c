package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// User is a directory entry. Invited users exist without a password until they accept.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID   string       `gorm:"column:external_id;type:text;not null;uniqueIndex" json:"external_id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	DisplayName  string       `gorm:"type:text" json:"display_name"`
	PasswordHash *string      `gorm:"column:password_hash;type:text" json:"-"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// SetPasswordIfEmpty writes the hash only when no password is set; it reports whether it wrote.
	SetPasswordIfEmpty(ctx context.Context, id snowflake.ID, hash string, displayName string, at time.Time) (bool, error)
}

type Service interface {
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EnsureByEmail(ctx context.Context, tx *gorm.DB, email string) (*User, error)
	SetInitialPassword(ctx context.Context, tx *gorm.DB, id snowflake.ID, password, displayName string) (bool, error)
}

var (
	ErrNotFound     = errors.New("user_not_found")
	ErrInvalidEmail = errors.New("invalid_email")
)
