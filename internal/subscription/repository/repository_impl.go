package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, reference_id, plan, external_customer_id, external_subscription_id,
	status, seats, period_start, period_end, trial_start, trial_end, cancel_at_period_end,
	cancel_at, canceled_at, ended_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.ReferenceID,
		subscription.Plan,
		subscription.ExternalCustomerID,
		subscription.ExternalSubscriptionID,
		subscription.Status,
		subscription.Seats,
		subscription.PeriodStart,
		subscription.PeriodEnd,
		subscription.TrialStart,
		subscription.TrialEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CancelAt,
		subscription.CanceledAt,
		subscription.EndedAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

// Upsert inserts the subscription or refreshes the row holding the same
// external subscription id.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"reference_id", "plan", "external_customer_id", "status", "seats",
			"period_start", "period_end", "trial_start", "trial_end",
			"cancel_at_period_end", "updated_at",
		}),
	}).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListByReference(ctx context.Context, db *gorm.DB, referenceID string) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE reference_id = ?
		 ORDER BY created_at ASC, id ASC`,
		referenceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListCurrentReferences pages through reference ids that own an active or
// trialing subscription, ordered by reference id.
func (r *repo) ListCurrentReferences(ctx context.Context, db *gorm.DB, afterReferenceID string, limit int) ([]string, error) {
	var refs []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT reference_id
		 FROM subscriptions
		 WHERE status IN ? AND reference_id > ?
		 ORDER BY reference_id ASC
		 LIMIT ?`,
		[]subscriptiondomain.Status{subscriptiondomain.StatusActive, subscriptiondomain.StatusTrialing},
		afterReferenceID,
		limit,
	).Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repo) UpdateSeats(ctx context.Context, db *gorm.DB, id snowflake.ID, seats int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET seats = ?, updated_at = ? WHERE id = ?`,
		seats,
		at,
		id,
	).Error
}

func (r *repo) MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, seats int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, seats = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscriptiondomain.StatusCanceled,
		seats,
		at,
		at,
		id,
	).Error
}
