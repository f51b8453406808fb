package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatkeeper/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.Metadata,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, metadata, created_at, updated_at
		 FROM organizations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, metadata, created_at, updated_at
		 FROM organizations
		 WHERE slug = ?
		 LIMIT 1`,
		slug,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

// DeleteOrganization removes the organization with its members and invitations.
// Subscription records are kept for billing history.
func (r *repository) DeleteOrganization(ctx context.Context, id snowflake.ID) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec(`DELETE FROM invitations WHERE org_id = ?`, id).Error; err != nil {
		return err
	}
	if err := db.Exec(`DELETE FROM organization_members WHERE org_id = ?`, id).Error; err != nil {
		return err
	}
	return db.Exec(`DELETE FROM organizations WHERE id = ?`, id).Error
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, userID string) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at ASC, o.id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

// UpsertMember inserts the member or, when the (org, user) pair already
// exists, overwrites its role and contact fields.
func (r *repository) UpsertMember(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "email", "name"}),
	}).Create(&member).Error
}

func (r *repository) GetMember(ctx context.Context, id snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, email, name, role, created_at
		 FROM organization_members
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) FindMember(ctx context.Context, orgID snowflake.ID, userID string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, email, name, role, created_at
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) FindMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, email, name, role, created_at
		 FROM organization_members
		 WHERE org_id = ? AND LOWER(email) = LOWER(?)
		 LIMIT 1`,
		orgID,
		email,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, email, name, role, created_at
		 FROM organization_members
		 WHERE org_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orgID,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// CountMembers counts members of the organization, limited to roles when any are given.
func (r *repository) CountMembers(ctx context.Context, orgID snowflake.ID, roles ...string) (int64, error) {
	var count int64
	stmt := r.db.WithContext(ctx).Model(&domain.Member{}).Where("org_id = ?", orgID)
	if len(roles) > 0 {
		stmt = stmt.Where("role IN ?", roles)
	}
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) LockOwners(ctx context.Context, orgID snowflake.ID) ([]domain.Member, error) {
	var owners []domain.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ? AND role = ?", orgID, domain.RoleOwner).
		Order("id ASC").
		Find(&owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *repository) DeleteMember(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE id = ?`,
		id,
	).Error
}

func (r *repository) UpdateMemberRole(ctx context.Context, id snowflake.ID, role string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organization_members SET role = ? WHERE id = ?`,
		role,
		id,
	).Error
}
