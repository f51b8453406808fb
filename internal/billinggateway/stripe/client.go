package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/seatkeeper/internal/billinggateway"
)

const (
	defaultAPIBase = "https://api.stripe.com"
	defaultTimeout = 12 * time.Second
)

type Config struct {
	SecretKey string
	AccountID string
	APIBase   string
	Timeout   time.Duration
}

type stripeSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Items  struct {
		Data []struct {
			ID       string `json:"id"`
			Quantity int    `json:"quantity"`
		} `json:"data"`
	} `json:"items"`
}

type stripeSubscriptionItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type stripeErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a form-encoded client for the subscription endpoints of the Stripe API.
type Client struct {
	apiKey    string
	accountID string
	apiBase   string
	client    *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		apiKey:    strings.TrimSpace(cfg.SecretKey),
		accountID: strings.TrimSpace(cfg.AccountID),
		apiBase:   apiBase,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) RetrieveSubscription(ctx context.Context, externalID string) (*billinggateway.ExternalSubscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, &billinggateway.Error{Code: billinggateway.CodeResourceMissing, Message: "subscription id is empty", StatusCode: http.StatusNotFound}
	}

	var sub stripeSubscription
	if err := c.doRequest(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(externalID), nil, "", &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, errors.New("stripe_response_invalid")
	}

	out := &billinggateway.ExternalSubscription{ID: sub.ID, Status: sub.Status}
	for _, item := range sub.Items.Data {
		out.Items = append(out.Items, billinggateway.Item{ID: item.ID, Quantity: item.Quantity})
	}
	return out, nil
}

func (c *Client) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return &billinggateway.Error{Code: billinggateway.CodeResourceMissing, Message: "subscription item id is empty", StatusCode: http.StatusNotFound}
	}

	values := url.Values{}
	values.Set("quantity", strconv.Itoa(quantity))

	var item stripeSubscriptionItem
	return c.doRequest(ctx, http.MethodPost, "/v1/subscription_items/"+url.PathEscape(itemID), values, uuid.NewString(), &item)
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return billinggateway.ErrNotConfigured
	}
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.accountID != "" {
		req.Header.Set("Stripe-Account", c.accountID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		gwErr := &billinggateway.Error{StatusCode: resp.StatusCode, Message: "stripe_request_failed"}
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err == nil {
			gwErr.Code = strings.TrimSpace(stripeErr.Error.Code)
			if message := strings.TrimSpace(stripeErr.Error.Message); message != "" {
				gwErr.Message = message
			}
		}
		return gwErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}
