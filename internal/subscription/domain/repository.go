package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists subscriptions. Missing rows are returned as nil without an error.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	ListByReference(ctx context.Context, db *gorm.DB, referenceID string) ([]Subscription, error)
	ListCurrentReferences(ctx context.Context, db *gorm.DB, afterReferenceID string, limit int) ([]string, error)
	UpdateSeats(ctx context.Context, db *gorm.DB, id snowflake.ID, seats int, at time.Time) error
	MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, seats int, at time.Time) error
}
