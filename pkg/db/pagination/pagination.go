package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidCursor = errors.New("invalid_cursor")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size" validate:"omitempty,gte=1,lte=250"`
}

// Limit clamps PageSize into [1, MaxPageSize], defaulting when unset.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor marks the last row of a page in (created_at DESC, id DESC) order.
type Cursor struct {
	ID        snowflake.ID `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// EncodeCursor renders c as an opaque, URL-safe page token.
func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a token from EncodeCursor. A blank token yields nil.
func DecodeCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.ID == 0 || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Page trims rows fetched with limit+1 to limit and points the next token at
// the last row kept.
func Page[T any](rows []*T, limit int, cursorOf func(*T) Cursor) ([]*T, PageInfo, error) {
	if limit <= 0 || len(rows) <= limit {
		return rows, PageInfo{}, nil
	}
	rows = rows[:limit]
	token, err := EncodeCursor(cursorOf(rows[limit-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return rows, PageInfo{NextPageToken: token, HasMore: true}, nil
}
