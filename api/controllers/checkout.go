package controllers

import (
	"net/http"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	"github.com/deepanshucode1-cmd/trisikha-backend/api/validators"
	checkoutsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/checkout"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

// Checkout reserves stock and opens a payment order for a guest cart.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.CheckoutInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// VerifyPayment completes the handshake the payment widget posts after a
// successful capture.
func VerifyPayment(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.VerifyInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.VerifyPayment(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}
