package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	shippingsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/shipping"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

// AdminShipOrder books the forward shipment for a paid order.
func AdminShipOrder(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.Ship(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}

// AdminSchedulePickup re-requests courier pickup for a booked shipment.
func AdminSchedulePickup(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.SchedulePickup(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}

// AdminGenerateLabel returns the label PDF URL for a booked shipment.
func AdminGenerateLabel(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url, err := svc.Label(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"label_url": url})
	}
}

// AdminTrackShipment returns the carrier scan history for an order's forward
// shipment.
func AdminTrackShipment(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.Track(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"scans": events})
	}
}

// AdminServiceability quotes couriers for a delivery pincode. weight_kg is
// optional and defaults to the service's minimum chargeable weight.
func AdminServiceability(svc shippingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		pincode := strings.TrimSpace(r.URL.Query().Get("delivery_pincode"))
		if pincode == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "delivery_pincode query parameter required"))
			return
		}

		var weightKg float64
		if raw := strings.TrimSpace(r.URL.Query().Get("weight_kg")); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "weight_kg must be a positive number"))
				return
			}
			weightKg = parsed
		}

		options, err := svc.Serviceability(r.Context(), pincode, weightKg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"couriers": options})
	}
}
