package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/deepanshucode1-cmd/trisikha-backend/api/responses"
	"github.com/deepanshucode1-cmd/trisikha-backend/api/validators"
	returnsvc "github.com/deepanshucode1-cmd/trisikha-backend/internal/returns"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

// AdminInspectReturn records the inspection verdict on returned goods and
// triggers the refund. The body is multipart: a deduction amount, an optional
// note, and inspection photos.
func AdminInspectReturn(svc returnsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := validators.ParseMultipart(r, validators.DefaultMultipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deduction, err := validators.FormInt64(r, "deduction_paise", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := returnsvc.InspectionInput{
			OrderID:        orderID,
			DeductionPaise: deduction,
			Note:           validators.SanitizeString(validators.FormValue(r, "note"), 1000),
		}

		for _, header := range validators.FormFiles(r, "photos") {
			file, openErr := header.Open()
			if openErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, openErr, "open uploaded photo"))
				return
			}
			defer file.Close()
			input.Photos = append(input.Photos, returnsvc.PhotoUpload{
				Body:        file,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
			})
		}

		projection, err := svc.InspectAndRefund(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, projection)
	}
}

type manifestRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=100"`
}

// AdminManifestReturns schedules courier pickups and generates one manifest
// for a batch of returns awaiting pickup.
func AdminManifestReturns(svc returnsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		var payload manifestRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ManifestBatch(r.Context(), payload.OrderIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
