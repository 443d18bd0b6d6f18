package admission

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

// DecodeJSON parses r's body into dst, reporting any failure as
// VALIDATION_ERROR rather than a raw decode error. Route handlers call this
// once, then run their own field-level checks.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.NewValidationError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	return nil
}

// RequireField reports a VALIDATION_ERROR naming field when value is empty.
// Route handlers call this for each required string field in submission
// order so the first violation is the one the caller sees.
func RequireField(field, value string) error {
	if value == "" {
		return apierrors.NewValidationError(fmt.Sprintf("%s is required", field), nil)
	}
	return nil
}

// RequireNonEmpty reports a VALIDATION_ERROR naming field when the slice is
// empty, used for selectedServerIds / messages.
func RequireNonEmpty[T any](field string, values []T) error {
	if len(values) == 0 {
		return apierrors.NewValidationError(fmt.Sprintf("%s must not be empty", field), nil)
	}
	return nil
}
