package apierrors

import (
	"encoding/json"
	"net/http"

	"github.com/mcpjam/hosted-gateway/pkg/logger"
)

// Envelope is the JSON body returned for every error response.
type Envelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// HandlerWithError is an HTTP handler that may return an error instead of
// writing its own error response, letting Wrap centralize envelope
// formatting and logging.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// Wrap adapts a HandlerWithError into a plain http.HandlerFunc, converting
// any returned error into the gateway's {code, message} envelope.
//
//	r.Post("/tools/execute", apierrors.Wrap(rt.ToolsExecute))
func Wrap(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		WriteEnvelope(w, err)
	}
}

// WriteEnvelope writes the taxonomy-coded JSON body for err. 5xx causes are
// logged in full server-side and never echoed to the client; 4xx messages
// are safe to return as-is since they describe caller-correctable problems.
func WriteEnvelope(w http.ResponseWriter, err error) {
	apiErr := As(err)
	status := apiErr.Status()

	if status >= http.StatusInternalServerError {
		logger.Errorf("internal error: %v", apiErr)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Code: apiErr.Code, Message: apiErr.Message})
}
