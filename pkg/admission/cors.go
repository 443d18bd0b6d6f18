package admission

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS builds the gateway's CORS middleware. Allowed origins come from an
// explicit allowlist; there is no wildcard fallback, so a browser origin
// absent from allowedOrigins never receives CORS headers and its preflight
// is rejected by the browser itself.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
