package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Cursor marks a position in the newest-first audit listing.
type Cursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

func CursorOf(entry AuditLog) Cursor {
	return Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
}

// Encode returns an opaque, URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsedID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, ts).UTC(), ID: parsedID}, nil
}
