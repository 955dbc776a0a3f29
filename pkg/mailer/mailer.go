package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

const responseBodyReadLimit int64 = 1024

// Message is one transactional email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Mailer delivers transactional email through an HTTP relay API. With no API
// base URL configured it degrades to logging the send, which keeps local
// development working without a mail account.
type Mailer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fromEmail  string
	fromName   string
	logger     *logger.Logger
}

// Option configures optional mailer behavior.
type Option func(*Mailer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Mailer) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// New builds the mailer from configuration.
func New(cfg config.MailConfig, logg *logger.Logger, opts ...Option) *Mailer {
	m := &Mailer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		apiKey:     cfg.APIKey,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		logger:     logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Enabled reports whether a relay API is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.baseURL != ""
}

// Send delivers one message. Recipientless messages are rejected; everything
// else is best-effort from the caller's point of view.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "mail recipient is required")
	}
	if !m.Enabled() {
		if m != nil && m.logger != nil {
			ctx = m.logger.WithFields(ctx, map[string]any{"subject": msg.Subject})
			m.logger.Info(ctx, "mail relay disabled, skipping send")
		}
		return nil
	}

	payload := map[string]any{
		"from_email": m.fromEmail,
		"from_name":  m.fromName,
		"to":         msg.To,
		"subject":    msg.Subject,
		"html_body":  msg.HTMLBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mail request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mail request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
			"mail send failed")
	}
	return nil
}
