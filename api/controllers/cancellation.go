package controllers

import (
	"net/http"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	"github.com/deepanshucode1-cmd/trisikha-backend/api/validators"
	cancelsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/cancellation"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

type cancellationOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type cancellationConfirmRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// RequestCancellationOTP emails a one-time code that authorizes cancelling
// the order.
func RequestCancellationOTP(svc cancelsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload cancellationOTPRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RequestOTP(r.Context(), orderID, payload.Email); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "otp_sent"})
	}
}

// ConfirmCancellation redeems the OTP and runs the cancellation.
func ConfirmCancellation(svc cancelsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload cancellationConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		projection, err := svc.Confirm(r.Context(), cancelsvc.ConfirmInput{
			OrderID: orderID,
			Email:   payload.Email,
			Code:    payload.Code,
			Reason:  validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}
