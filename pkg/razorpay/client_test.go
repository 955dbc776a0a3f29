package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	rzperrors "github.com/razorpay/razorpay-go/errors"

	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

func TestRedact(t *testing.T) {
	c := &Client{}
	if out := c.redact("webhook_signature", "abc123"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if v := c.redact("status", "captured"); v != "captured" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestMapError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name string
		err  error
	}{
		{name: "bad request", err: &rzperrors.BadRequestError{Message: "amount exceeds captured amount"}},
		{name: "gateway", err: &rzperrors.GatewayError{Message: "upstream timeout"}},
		{name: "server", err: &rzperrors.ServerError{Message: "internal"}},
		{name: "plain", err: errors.New("connection reset")},
	}
	for _, tt := range table {
		mapped := c.mapError(tt.err, "create refund")
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not a typed error", tt.name)
		}
		if typed.Code() != pkgerrors.CodeDependency {
			t.Fatalf("%s: expected dependency code, got %s", tt.name, typed.Code())
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := &Client{webhookSecret: "whsec_test"}
	body := []byte(`{"event":"refund.processed"}`)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !c.VerifyWebhookSignature(body, valid) {
		t.Fatalf("expected valid signature to verify")
	}
	if c.VerifyWebhookSignature(body, "deadbeef") {
		t.Fatalf("expected tampered signature to fail")
	}
	if c.VerifyWebhookSignature([]byte(`{"event":"tampered"}`), valid) {
		t.Fatalf("expected altered body to fail verification")
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	c := &Client{keySecret: "key_secret_test"}

	payload := "order_Ntest123|pay_Ntest456"
	mac := hmac.New(sha256.New, []byte("key_secret_test"))
	mac.Write([]byte(payload))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !c.VerifyPaymentSignature("order_Ntest123", "pay_Ntest456", valid) {
		t.Fatalf("expected valid checkout signature to verify")
	}
	if c.VerifyPaymentSignature("order_Ntest123", "pay_other", valid) {
		t.Fatalf("expected mismatched payment id to fail")
	}
}

func TestFieldHelpers(t *testing.T) {
	resp := map[string]any{
		"id":       "order_Nabc",
		"amount":   float64(50000),
		"currency": "INR",
	}
	if got := stringField(resp, "id"); got != "order_Nabc" {
		t.Fatalf("unexpected id %q", got)
	}
	if got := int64Field(resp, "amount"); got != 50000 {
		t.Fatalf("unexpected amount %d", got)
	}
	if got := int64Field(resp, "missing"); got != 0 {
		t.Fatalf("expected zero for missing field, got %d", got)
	}
}
