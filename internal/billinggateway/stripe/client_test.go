package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/seatkeeper/internal/billinggateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{SecretKey: "sk_test_123", AccountID: "acct_9", APIBase: srv.URL, Timeout: time.Second})
}

func TestRetrieveSubscriptionParsesItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "acct_9", r.Header.Get("Stripe-Account"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"active","items":{"data":[{"id":"si_1","quantity":3}]}}`))
	})

	sub, err := client.RetrieveSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)
	require.Len(t, sub.Items, 1)
	assert.Equal(t, billinggateway.Item{ID: "si_1", Quantity: 3}, sub.Items[0])
}

func TestRetrieveSubscriptionMapsResourceMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"resource_missing","type":"invalid_request_error","message":"No such subscription: 'sub_gone'"}}`))
	})

	_, err := client.RetrieveSubscription(context.Background(), "sub_gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, billinggateway.ErrNotFound)
	assert.Equal(t, "No such subscription: 'sub_gone'", billinggateway.Message(err))
}

func TestRetrieveSubscriptionServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"Something went wrong"}}`))
	})

	_, err := client.RetrieveSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, billinggateway.ErrNotFound)
	assert.Equal(t, "Something went wrong", billinggateway.Message(err))
}

func TestUpdateItemQuantitySendsFormBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/subscription_items/si_1", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2", r.PostForm.Get("quantity"))
		_, _ = w.Write([]byte(`{"id":"si_1","quantity":2}`))
	})

	require.NoError(t, client.UpdateItemQuantity(context.Background(), "si_1", 2))
}

func TestRequestHonoursContextDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.RetrieveSubscription(ctx, "sub_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMissingKeyIsNotConfigured(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.RetrieveSubscription(context.Background(), "sub_1")
	assert.ErrorIs(t, err, billinggateway.ErrNotConfigured)
}
