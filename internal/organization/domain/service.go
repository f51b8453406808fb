package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// NormalizeRole trims and lower-cases a role, returning ok=false for unknown roles.
func NormalizeRole(role string) (string, bool) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return role, true
	default:
		return "", false
	}
}

var roleRank = map[string]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// StrongerRole returns whichever of a and b grants more capabilities.
func StrongerRole(a, b string) string {
	if roleRank[b] > roleRank[a] {
		return b
	}
	return a
}

type Service interface {
	Create(ctx context.Context, actor identity.Actor, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, actor identity.Actor, id string) (*OrganizationResponse, error)
	GetBySlug(ctx context.Context, actor identity.Actor, slug string) (*OrganizationResponse, error)
	ListByUser(ctx context.Context, actor identity.Actor) ([]OrganizationListResponseItem, error)
	ListMembers(ctx context.Context, actor identity.Actor, orgID string) ([]MemberResponse, error)
	MemberCount(ctx context.Context, orgID snowflake.ID) (int64, error)
	Delete(ctx context.Context, actor identity.Actor, orgID string) error
	RemoveMember(ctx context.Context, actor identity.Actor, memberID string) (*RemoveMemberResult, error)
	ChangeRole(ctx context.Context, actor identity.Actor, memberID string, role string) (*ChangeRoleResult, error)
}

type CreateOrganizationRequest struct {
	Name string
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type RemoveMemberResult struct {
	Success          bool              `json:"success"`
	OrganizationID   string            `json:"organization_id"`
	OrganizationName string            `json:"organization_name"`
	SeatSync         seatdomain.Result `json:"seat_sync"`
}

type ChangeRoleResult struct {
	Success bool   `json:"success"`
	Role    string `json:"role"`
}

func NewMemberResponse(m Member) MemberResponse {
	return MemberResponse{
		ID:        m.ID.String(),
		OrgID:     m.OrgID.String(),
		UserID:    m.UserID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidMember       = errors.New("invalid_member")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrNotFound            = errors.New("not_found")
	ErrForbidden           = errors.New("forbidden")
	ErrLastOwner           = errors.New("last_owner")
	ErrSelfRemoval         = errors.New("self_removal")
)
