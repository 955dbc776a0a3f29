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

const shiprocketTokenHeader = "X-Api-Key"

type shiprocketProcessor interface {
	Authorized(token string) bool
	Process(ctx context.Context, body []byte) error
}

// Shiprocket ingests courier tracking updates for forward and return legs.
func Shiprocket(processor shiprocketProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		if !processor.Authorized(strings.TrimSpace(r.Header.Get(shiprocketTokenHeader))) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := processor.Process(ctx, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
