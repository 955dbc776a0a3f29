package controllers

import (
	"net/http"
	"strings"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	"github.com/deepanshucode1-cmd/trisikha-backend/api/validators"
	cancelsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/cancellation"
	ordersvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/orders"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/enums"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/pagination"
)

type adminOrderPage struct {
	Orders     []ordersvc.StatusProjection `json:"orders"`
	NextCursor string                      `json:"next_cursor,omitempty"`
}

// AdminRetryCancellation re-runs shipment cancellation and refund for an
// order stuck in CANCELLATION_REQUESTED.
func AdminRetryCancellation(svc cancelsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.AdminRetry(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}

// AdminListOrders returns orders filtered by primary status for the ops
// dashboard.
func AdminListOrders(repo ordersvc.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		rawStatus := strings.TrimSpace(r.URL.Query().Get("status"))
		if rawStatus == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status query parameter required"))
			return
		}
		status, err := enums.ParseOrderStatus(rawStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		// one extra row tells us whether another page exists
		rows, err := repo.ListByOrderStatus(r.Context(), status, cursor, limit+1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders"))
			return
		}

		page := adminOrderPage{Orders: make([]ordersvc.StatusProjection, 0, len(rows))}
		if len(rows) > limit {
			rows = rows[:limit]
			last := rows[len(rows)-1]
			page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: last.CreatedAt,
				ID:        last.ID,
			})
		}
		for i := range rows {
			page.Orders = append(page.Orders, ordersvc.Project(&rows[i]))
		}
		responses.WriteSuccess(w, page)
	}
}
