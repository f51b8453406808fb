package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/billinggateway"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/config"
	obslogger "github.com/smallbiznis/seatkeeper/internal/observability/logger"
	"github.com/smallbiznis/seatkeeper/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	"github.com/smallbiznis/seatkeeper/internal/seat/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	gatewayOpRetrieve = "retrieve_subscription"
	gatewayOpUpdate   = "update_item_quantity"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Policy   *config.PolicyHolder
	Clock    clock.Clock
	Members  orgdomain.Repository
	Subs     subscriptiondomain.Repository
	SubSvc   subscriptiondomain.Service `optional:"true"`
	Gateway  billinggateway.Gateway
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	policy   *config.PolicyHolder
	clock    clock.Clock
	members  orgdomain.Repository
	subs     subscriptiondomain.Repository
	subSvc   subscriptiondomain.Service
	gateway  billinggateway.Gateway
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:       p.DB,
		log:      p.Log.Named("seat.engine"),
		policy:   p.Policy,
		clock:    p.Clock,
		members:  p.Members,
		subs:     p.Subs,
		subSvc:   p.SubSvc,
		gateway:  p.Gateway,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("seatkeeper/seat"),
	}
}

// Reconcile sets the seat quantity of the organization's current
// subscription to its billable member count. The error is reserved for
// store failures; gateway problems are reported through the Result.
func (e *Engine) Reconcile(ctx context.Context, orgID snowflake.ID) (domain.Result, error) {
	return e.run(ctx, orgID, domain.ReasonManual)
}

// Trigger runs a reconciliation on behalf of a membership mutation that has
// already committed. It never fails.
func (e *Engine) Trigger(ctx context.Context, orgID snowflake.ID, reason string) domain.Result {
	result, err := e.run(ctx, orgID, reason)
	if err != nil {
		obslogger.WithContext(ctx, e.log).Warn("seat reconciliation failed",
			zap.String("org_id", orgID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return domain.Result{
			Success:     false,
			Outcome:     domain.OutcomeFailed,
			Message:     "Seat sync failed",
			MemberCount: result.MemberCount,
		}
	}
	if warning := result.Warning(); warning != "" {
		obslogger.WithContext(ctx, e.log).Warn("seat reconciliation incomplete",
			zap.String("org_id", orgID.String()),
			zap.String("reason", reason),
			zap.String("outcome", string(result.Outcome)),
			zap.String("message", warning),
		)
	}
	return result
}

// NeedsSync reports whether the current subscription's seats differ from the
// billable member count.
func (e *Engine) NeedsSync(ctx context.Context, orgID snowflake.ID) (bool, error) {
	count, err := e.countMembers(ctx, orgID)
	if err != nil {
		return false, err
	}
	subs, err := e.subs.ListByReference(ctx, e.db, orgID.String())
	if err != nil {
		return false, err
	}
	target := subscriptiondomain.SelectTarget(subs)
	if target == nil {
		return false, nil
	}
	return target.Seats == nil || int64(*target.Seats) != count, nil
}

func (e *Engine) run(ctx context.Context, orgID snowflake.ID, reason string) (domain.Result, error) {
	ctx, span := e.tracer.Start(ctx, "seat.reconcile", trace.WithAttributes(
		attribute.String("org_id", orgID.String()),
		attribute.String("reason", reason),
	))
	defer span.End()

	start := time.Now()
	result, err := e.reconcile(ctx, orgID)
	outcome := string(result.Outcome)
	if err != nil {
		outcome = string(domain.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int64("member_count", result.MemberCount),
	)
	e.metrics.ObserveReconciliation(reason, outcome, time.Since(start))
	if err != nil {
		return result, err
	}

	e.audit(ctx, orgID, reason, result)
	return result, nil
}

func (e *Engine) reconcile(ctx context.Context, orgID snowflake.ID) (domain.Result, error) {
	count, err := e.countMembers(ctx, orgID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("count members: %w", err)
	}

	subs, err := e.subs.ListByReference(ctx, e.db, orgID.String())
	if err != nil {
		return domain.Result{MemberCount: count}, fmt.Errorf("list subscriptions: %w", err)
	}
	target := subscriptiondomain.SelectTarget(subs)
	if target == nil {
		return domain.Result{
			Success:     false,
			Outcome:     domain.OutcomeNoSubscription,
			Message:     "No active or trialing subscription found",
			MemberCount: count,
		}, nil
	}

	seats := int(count)
	result := domain.Result{
		MemberCount:            count,
		SubscriptionID:         target.ID.String(),
		ExternalSubscriptionID: target.ExternalID(),
	}

	if target.Seats != nil && *target.Seats == seats {
		result.Success = true
		result.Outcome = domain.OutcomeAlreadySynced
		result.Message = fmt.Sprintf("Seats already set to %d", seats)
		result.UpdatedSeats = &seats
		return result, nil
	}

	result.Outcome = domain.OutcomeLocalOnly
	if externalID := target.ExternalID(); externalID != "" {
		outcome, message, err := e.syncGateway(ctx, externalID, seats)
		switch {
		case err == nil:
			result.Outcome = outcome
		case errors.Is(err, billinggateway.ErrNotFound):
			if err := e.subs.MarkCanceled(ctx, e.db, target.ID, seats, e.clock.Now()); err != nil {
				return result, fmt.Errorf("mark subscription canceled: %w", err)
			}
			e.invalidate(ctx, orgID)
			result.Outcome = domain.OutcomeExternalMissing
			result.Message = "Stripe subscription not found - marked as canceled"
			return result, nil
		default:
			result.Outcome = outcome
			result.Message = message
			return result, nil
		}
	}

	if err := e.subs.UpdateSeats(ctx, e.db, target.ID, seats, e.clock.Now()); err != nil {
		return result, fmt.Errorf("update seats: %w", err)
	}
	e.invalidate(ctx, orgID)

	result.Success = true
	result.Message = fmt.Sprintf("Updated subscription to %d seats", seats)
	result.UpdatedSeats = &seats
	return result, nil
}

// syncGateway pushes seats to the first item of the processor subscription.
// A non-nil error carries the outcome and message to report.
func (e *Engine) syncGateway(ctx context.Context, externalID string, seats int) (domain.Outcome, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.gatewayTimeout())
	defer cancel()

	external, err := e.gateway.RetrieveSubscription(ctx, externalID)
	e.metrics.ObserveGatewayCall(gatewayOpRetrieve, err)
	if err != nil {
		return domain.OutcomeGatewayError, "Stripe error: " + billinggateway.Message(err), err
	}
	if len(external.Items) == 0 {
		return domain.OutcomeNoItems, "No subscription items found in Stripe", errors.New("no_items")
	}

	item := external.Items[0]
	quantity := item.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity == seats {
		return domain.OutcomeCorrected, "", nil
	}

	err = e.gateway.UpdateItemQuantity(ctx, item.ID, seats)
	e.metrics.ObserveGatewayCall(gatewayOpUpdate, err)
	if err != nil {
		if errors.Is(err, billinggateway.ErrNotFound) {
			return domain.OutcomeExternalMissing, "", err
		}
		return domain.OutcomeGatewayError, "Stripe error: " + billinggateway.Message(err), err
	}
	e.metrics.ObserveSeatChange(int64(quantity), int64(seats))
	return domain.OutcomeUpdated, "", nil
}

func (e *Engine) countMembers(ctx context.Context, orgID snowflake.ID) (int64, error) {
	roles := e.policy.Get().Seats.BillableRoles
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			normalized = append(normalized, role)
		}
	}
	return e.members.CountMembers(ctx, orgID, normalized...)
}

func (e *Engine) gatewayTimeout() time.Duration {
	if timeout := e.policy.Get().Seats.GatewayTimeout; timeout > 0 {
		return timeout
	}
	return 10 * time.Second
}

func (e *Engine) invalidate(ctx context.Context, orgID snowflake.ID) {
	if e.subSvc != nil {
		e.subSvc.Invalidate(ctx, orgID.String())
	}
}

func (e *Engine) audit(ctx context.Context, orgID snowflake.ID, reason string, result domain.Result) {
	if e.auditSvc == nil {
		return
	}
	switch result.Outcome {
	case domain.OutcomeNoSubscription, domain.OutcomeAlreadySynced:
		return
	}

	metadata := map[string]any{
		"reason":       reason,
		"outcome":      string(result.Outcome),
		"success":      result.Success,
		"member_count": result.MemberCount,
	}
	if result.UpdatedSeats != nil {
		metadata["updated_seats"] = *result.UpdatedSeats
	}
	if result.ExternalSubscriptionID != "" {
		metadata["external_subscription_id"] = result.ExternalSubscriptionID
	}
	if result.Message != "" {
		metadata["message"] = result.Message
	}

	if err := e.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		Action:     auditdomain.ActionSeatsReconciled,
		TargetType: "subscription",
		TargetID:   result.SubscriptionID,
		Metadata:   metadata,
	}); err != nil {
		e.log.Warn("failed to write seat reconciliation audit log", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}
