package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

// Repository is the membership store. Missing rows are returned as nil without an error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	DeleteOrganization(ctx context.Context, id snowflake.ID) error
	ListOrganizationsByUser(ctx context.Context, userID string) ([]OrganizationListItem, error)

	UpsertMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id snowflake.ID) (*Member, error)
	FindMember(ctx context.Context, orgID snowflake.ID, userID string) (*Member, error)
	FindMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*Member, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]Member, error)
	CountMembers(ctx context.Context, orgID snowflake.ID, roles ...string) (int64, error)
	// LockOwners returns the owner rows of the organization locked for update
	// until the surrounding transaction ends.
	LockOwners(ctx context.Context, orgID snowflake.ID) ([]Member, error)
	DeleteMember(ctx context.Context, id snowflake.ID) error
	UpdateMemberRole(ctx context.Context, id snowflake.ID, role string) error
}
