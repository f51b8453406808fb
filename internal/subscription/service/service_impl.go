package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/cache"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	summaryTTL = 5 * time.Minute

	generationShards = 256
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Repo   subscriptiondomain.Repository
	Orgs   orgdomain.Repository
	Authz  authorization.Service
	Cache  cache.Store
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.PolicyHolder
	repo   subscriptiondomain.Repository
	orgs   orgdomain.Repository
	authz  authorization.Service
	cache  cache.Store
	loads  singleflight.Group

	// generations is bumped by Invalidate. A summary load only stays cached
	// when its shard did not move while the load was running.
	generations [generationShards]atomic.Uint64
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("subscription.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
		orgs:   p.Orgs,
		authz:  p.Authz,
		cache:  p.Cache,
	}
}

// Record stores a subscription produced by checkout. A known external
// subscription id updates the existing row.
func (s *Service) Record(ctx context.Context, req subscriptiondomain.RecordRequest) (*subscriptiondomain.Subscription, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(req.ReferenceID))
	if err != nil || orgID == 0 {
		return nil, subscriptiondomain.ErrInvalidReference
	}
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, subscriptiondomain.ErrInvalidReference
	}

	plan, ok := s.policy.Get().FindPlan(req.Plan)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	status := subscriptiondomain.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if status == "" {
		status = subscriptiondomain.StatusIncomplete
	}
	if !validStatus(status) {
		return nil, subscriptiondomain.ErrInvalidStatus
	}
	if req.Seats != nil && *req.Seats < 0 {
		return nil, subscriptiondomain.ErrInvalidSeats
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:                     s.genID.Generate(),
		ReferenceID:            orgID.String(),
		Plan:                   strings.ToLower(plan.Name),
		ExternalCustomerID:     optionalString(req.ExternalCustomerID),
		ExternalSubscriptionID: optionalString(req.ExternalSubscriptionID),
		Status:                 status,
		Seats:                  req.Seats,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		TrialStart:             req.TrialStart,
		TrialEnd:               req.TrialEnd,
		CancelAtPeriodEnd:      req.CancelAtPeriodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if sub.ExternalSubscriptionID != nil {
		err = s.repo.Upsert(ctx, s.db, &sub)
	} else {
		err = s.repo.Insert(ctx, s.db, &sub)
	}
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, sub.ReferenceID)
	s.log.Info("subscription recorded",
		zap.String("reference_id", sub.ReferenceID),
		zap.String("plan", sub.Plan),
		zap.String("status", string(sub.Status)),
	)
	return &sub, nil
}

func (s *Service) List(ctx context.Context, actor identity.Actor, orgID string) ([]subscriptiondomain.Subscription, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(orgID))
	if err != nil || id == 0 {
		return nil, subscriptiondomain.ErrInvalidReference
	}
	if !s.authz.Authorize(ctx, actor.UserID, id, authorization.ActionSubscriptionRead) {
		return nil, subscriptiondomain.ErrForbidden
	}
	return s.repo.ListByReference(ctx, s.db, id.String())
}

// Summary reports whether the organization has a current subscription and
// the limits of its plan.
func (s *Service) Summary(ctx context.Context, orgID string) (*subscriptiondomain.Summary, error) {
	referenceID := strings.TrimSpace(orgID)
	if referenceID == "" {
		return nil, subscriptiondomain.ErrInvalidReference
	}

	var cached subscriptiondomain.Summary
	hit, err := cache.GetJSON(ctx, s.cache, summaryKey(referenceID), &cached)
	if err != nil {
		s.log.Warn("subscription summary cache read failed", zap.String("reference_id", referenceID), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	// Concurrent misses for one organization share a single load.
	v, err, _ := s.loads.Do(referenceID, func() (any, error) {
		generation := s.generation(referenceID).Load()
		subs, err := s.repo.ListByReference(ctx, s.db, referenceID)
		if err != nil {
			return nil, err
		}
		summary := s.buildSummary(subs)
		s.storeSummary(ctx, referenceID, generation, summary)
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	summary := v.(subscriptiondomain.Summary)
	return &summary, nil
}

// storeSummary caches a loaded summary unless an invalidation for the same
// reference ran after generation was read.
func (s *Service) storeSummary(ctx context.Context, referenceID string, generation uint64, summary subscriptiondomain.Summary) {
	counter := s.generation(referenceID)
	if counter.Load() != generation {
		return
	}
	key := summaryKey(referenceID)
	if err := cache.SetJSON(ctx, s.cache, key, summary, summaryTTL); err != nil {
		s.log.Warn("subscription summary cache write failed", zap.String("reference_id", referenceID), zap.Error(err))
		return
	}
	if counter.Load() != generation {
		s.deleteSummary(ctx, referenceID)
	}
}

func (s *Service) buildSummary(subs []subscriptiondomain.Subscription) subscriptiondomain.Summary {
	summary := subscriptiondomain.Summary{}
	target := subscriptiondomain.SelectTarget(subs)
	if target == nil {
		return summary
	}

	status := target.Status
	summary.HasActiveSubscription = true
	summary.SubscriptionID = target.ID.String()
	summary.Status = &status
	summary.Plan = target.Plan
	summary.Seats = target.Seats

	if plan, ok := s.policy.Get().FindPlan(target.Plan); ok {
		if plan.Members != config.Unlimited {
			limit := plan.Members
			summary.SeatLimit = &limit
		}
		summary.ProjectLimit = plan.Projects
		summary.StorageGB = plan.StorageGB
	}
	return summary
}

func (s *Service) Invalidate(ctx context.Context, orgID string) {
	referenceID := strings.TrimSpace(orgID)
	s.generation(referenceID).Add(1)
	s.loads.Forget(referenceID)
	s.deleteSummary(ctx, referenceID)
}

func (s *Service) deleteSummary(ctx context.Context, referenceID string) {
	if err := s.cache.Delete(ctx, summaryKey(referenceID)); err != nil {
		s.log.Warn("subscription summary cache invalidation failed", zap.String("reference_id", referenceID), zap.Error(err))
	}
}

func (s *Service) generation(referenceID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(referenceID))
	return &s.generations[h.Sum32()%generationShards]
}

func summaryKey(referenceID string) string {
	return "subscription:summary:" + referenceID
}

func validStatus(status subscriptiondomain.Status) bool {
	switch status {
	case subscriptiondomain.StatusIncomplete,
		subscriptiondomain.StatusIncompleteExpired,
		subscriptiondomain.StatusTrialing,
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusPastDue,
		subscriptiondomain.StatusCanceled,
		subscriptiondomain.StatusUnpaid,
		subscriptiondomain.StatusPaused,
		subscriptiondomain.StatusEnded:
		return true
	default:
		return false
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
