package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/db/models"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/mailer"
)

type outboxStore interface {
	FetchUnpublished(limit int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

type sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Flusher drains queued notification events after the business transaction
// has committed. Delivery is best-effort: failures are recorded on the event
// row and never propagate to the caller.
type Flusher struct {
	store       outboxStore
	mail        sender
	logg        *logger.Logger
	batchSize   int
	maxAttempts int
	retryBase   time.Duration
}

// NewFlusher builds the notification flusher.
func NewFlusher(store outboxStore, mail sender, logg *logger.Logger, batchSize, maxAttempts int, retryBase time.Duration) *Flusher {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	return &Flusher{
		store:       store,
		mail:        mail,
		logg:        logg,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
	}
}

// Flush sends one batch of pending notifications. Events that exhausted their
// send retries keep their attempt count and last error for the next flush.
func (f *Flusher) Flush(ctx context.Context) {
	events, err := f.store.FetchUnpublished(f.batchSize)
	if err != nil {
		f.logError(ctx, "outbox fetch failed", err)
		return
	}

	for _, event := range events {
		notifType, ok := enums.NotificationTypeFromEvent(event.EventType)
		if !ok {
			// not a notification event; another consumer owns it
			continue
		}
		if event.AttemptCount >= f.maxAttempts {
			continue
		}

		payload, err := DecodePayload(event.Payload)
		if err != nil {
			f.logError(ctx, "notification payload corrupt", err)
			_ = f.store.MarkFailed(event.ID, err)
			continue
		}

		subject, body := Render(notifType, payload)
		backoff := retry.WithMaxRetries(uint64(f.maxAttempts-1), retry.NewExponential(f.retryBase))
		sendErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := f.mail.Send(ctx, mailer.Message{
				To:       payload.Recipient,
				Subject:  subject,
				HTMLBody: body,
			}); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if sendErr != nil {
			f.logError(ctx, "notification send failed", sendErr)
			_ = f.store.MarkFailed(event.ID, sendErr)
			continue
		}
		if err := f.store.MarkPublished(event.ID); err != nil {
			f.logError(ctx, "mark published failed", err)
		}
	}
}

func (f *Flusher) logError(ctx context.Context, msg string, err error) {
	if f.logg == nil {
		return
	}
	f.logg.Error(ctx, msg, err)
}
