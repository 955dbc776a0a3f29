package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rzpsdk "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	rzputils "github.com/razorpay/razorpay-go/utils"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

var (
	errKeyIDRequired         = errors.New("razorpay key id is required")
	errKeySecretRequired     = errors.New("razorpay key secret is required")
	errWebhookSecretRequired = errors.New("razorpay webhook secret is required")
	errLoggerRequired        = errors.New("razorpay logger is required")
)

// Client exposes Razorpay primitives with centralized auth, logging, and error
// mapping. All monetary amounts are integer paise.
type Client struct {
	sdk           *rzpsdk.Client
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *logger.Logger
}

// OrderCreateParams describes a gateway order for one storefront order.
type OrderCreateParams struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]any
}

// OrderResult is the subset of the gateway order we persist.
type OrderResult struct {
	ID          string
	AmountPaise int64
	Currency    string
	Status      string
}

// RefundResult is the subset of the gateway refund we persist.
type RefundResult struct {
	ID     string
	Status string
}

// NewClient initializes the Razorpay wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	c := &Client{
		sdk:           rzpsdk.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logg,
	}

	logg.Info(ctx, "razorpay client initialized")
	return c, nil
}

// KeyID returns the publishable key the checkout widget needs.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// CreateOrder registers a gateway order so the widget can collect payment
// against it.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*OrderResult, error) {
	data := map[string]any{
		"amount":   params.AmountPaise,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	}
	if len(params.Notes) > 0 {
		data["notes"] = params.Notes
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"amount":   params.AmountPaise,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	})

	resp, err := c.sdk.Order.Create(data, nil)
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, c.mapError(err, "create order")
	}

	result := &OrderResult{
		ID:          stringField(resp, "id"),
		AmountPaise: int64Field(resp, "amount"),
		Currency:    stringField(resp, "currency"),
		Status:      stringField(resp, "status"),
	}
	c.log(ctx, "response", "create_order", map[string]any{
		"order_id": result.ID,
		"status":   result.Status,
	})
	return result, nil
}

// CreateRefund initiates a full or partial refund against a captured payment.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amountPaise int64, notes map[string]any) (*RefundResult, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required for refund")
	}
	data := map[string]any{}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	c.log(ctx, "request", "create_refund", map[string]any{
		"payment_id": paymentID,
		"amount":     amountPaise,
	})

	resp, err := c.sdk.Payment.Refund(paymentID, int(amountPaise), data, nil)
	if err != nil {
		c.log(ctx, "error", "create_refund", map[string]any{"error": err.Error()})
		return nil, c.mapError(err, "create refund")
	}

	result := &RefundResult{
		ID:     stringField(resp, "id"),
		Status: stringField(resp, "status"),
	}
	c.log(ctx, "response", "create_refund", map[string]any{
		"refund_id": result.ID,
		"status":    result.Status,
	})
	return result, nil
}

// VerifyPaymentSignature checks the HMAC the checkout widget returns after a
// successful payment.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if c == nil {
		return false
	}
	params := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	return rzputils.VerifyPaymentSignature(params, signature, c.keySecret)
}

// VerifyWebhookSignature checks the HMAC on a gateway webhook body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil {
		return false
	}
	return rzputils.VerifyWebhookSignature(string(body), signature, c.webhookSecret)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("razorpay %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "signature", "token", "email", "phone", "contact"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var badReq *rzperrors.BadRequestError
	if errors.As(err, &badReq) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s rejected", op))
	}
	var gw *rzperrors.GatewayError
	if errors.As(err, &gw) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s gateway failure", op))
	}
	var srv *rzperrors.ServerError
	if errors.As(err, &srv) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s server failure", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay %s failed", op))
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
