package validators

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
)

// DefaultMultipartMemory bounds how much of a multipart body is buffered in memory.
const DefaultMultipartMemory int64 = 32 << 20

func ParseMultipart(r *http.Request, maxMemory int64) error {
	if maxMemory <= 0 {
		maxMemory = DefaultMultipartMemory
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	return nil
}

// FormFiles returns the uploaded file headers for the named field, if any.
func FormFiles(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

func FormValue(r *http.Request, field string) string {
	return strings.TrimSpace(r.FormValue(field))
}

// FormInt64 parses an optional numeric form field, returning defaultVal when absent.
func FormInt64(r *http.Request, field string, defaultVal int64) (int64, error) {
	raw := FormValue(r, field)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "form field must be numeric").WithDetails(map[string]any{"field": field})
	}
	return value, nil
}
