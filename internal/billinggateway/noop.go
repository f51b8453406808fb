package billinggateway

import "context"

// NoopGateway is installed when no processor credentials are configured.
// Every call fails with ErrNotConfigured.
type NoopGateway struct{}

func (NoopGateway) RetrieveSubscription(ctx context.Context, externalID string) (*ExternalSubscription, error) {
	return nil, ErrNotConfigured
}

func (NoopGateway) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	return ErrNotConfigured
}
