package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Entry describes one audited change. An empty ActorType is taken from the
// request context, falling back to system. A zero OrgID records no org.
type Entry struct {
	OrgID      snowflake.ID
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	Cursor     string
	Limit      int
}

type ListAuditLogResponse struct {
	AuditLogs  []AuditLog `json:"audit_logs"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidCursor       = errors.New("invalid_cursor")
)
