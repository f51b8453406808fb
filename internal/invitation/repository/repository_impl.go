package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"gorm.io/gorm"
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

func (r *repository) Insert(ctx context.Context, inv domain.Invitation) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO invitations (id, org_id, email, role, status, inviter_id, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.OrgID,
		inv.Email,
		inv.Role,
		inv.Status,
		inv.InviterID,
		inv.ExpiresAt,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, email, role, status, inviter_id, expires_at, created_at, updated_at
		 FROM invitations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repository) FindPending(ctx context.Context, orgID snowflake.ID, email string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, email, role, status, inviter_id, expires_at, created_at, updated_at
		 FROM invitations
		 WHERE org_id = ? AND email = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		orgID,
		email,
		domain.StatusPending,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repository) ListPending(ctx context.Context, orgID snowflake.ID) ([]domain.Invitation, error) {
	var items []domain.Invitation
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, org_id, email, role, status, inviter_id, expires_at, created_at, updated_at
		 FROM invitations
		 WHERE org_id = ? AND status = ?
		 ORDER BY created_at ASC, id ASC`,
		orgID,
		domain.StatusPending,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Refresh(ctx context.Context, id snowflake.ID, role string, expiresAt time.Time, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE invitations
		 SET role = ?, expires_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		role,
		expiresAt,
		at,
		id,
		domain.StatusPending,
	).Error
}

func (r *repository) Transition(ctx context.Context, id snowflake.ID, from domain.Status, to domain.Status, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE invitations
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		at,
		id,
		from,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE invitations
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at <= ?`,
		domain.StatusExpired,
		now,
		domain.StatusPending,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
