package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

const (
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
	razorpaySignatureHeader = "X-Razorpay-Signature"
)

type razorpayProcessor interface {
	Process(ctx context.Context, eventID string, body []byte, signature string) error
}

// Razorpay ingests payment and refund events from the gateway.
func Razorpay(processor razorpayProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(razorpayEventIDHeader))
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		signature := strings.TrimSpace(r.Header.Get(razorpaySignatureHeader))

		if err := processor.Process(ctx, eventID, body, signature); err != nil {
			// Non-2xx makes the gateway redeliver; the event store keeps
			// redelivery safe.
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
