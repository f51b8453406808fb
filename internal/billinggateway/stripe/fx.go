package stripe

import (
	"github.com/smallbiznis/seatkeeper/internal/billinggateway"
	"github.com/smallbiznis/seatkeeper/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billinggateway.stripe",
	fx.Provide(NewGateway),
)

// NewGateway returns the Stripe client, or a gateway that refuses every call
// when no secret key is configured.
func NewGateway(cfg config.Config, log *zap.Logger) billinggateway.Gateway {
	if cfg.Stripe.SecretKey == "" {
		log.Warn("stripe secret key not configured, seat quantities will not reach stripe")
		return billinggateway.NoopGateway{}
	}
	return NewClient(Config{
		SecretKey: cfg.Stripe.SecretKey,
		AccountID: cfg.Stripe.AccountID,
		APIBase:   cfg.Stripe.APIBase,
		Timeout:   cfg.Stripe.Timeout,
	})
}
