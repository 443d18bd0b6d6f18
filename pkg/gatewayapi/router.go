package gatewayapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/auth"
	"github.com/mcpjam/hosted-gateway/pkg/config"
	"github.com/mcpjam/hosted-gateway/pkg/metrics"
	"github.com/mcpjam/hosted-gateway/pkg/oauthproxy"
	"github.com/mcpjam/hosted-gateway/pkg/ratelimit"
)

// RouterOptions carries everything the /web router needs beyond the
// single-shot route handlers themselves. Chat and the OAuth proxy are
// injected as handlers so this package does not depend on theirs.
type RouterOptions struct {
	Deps           *Deps
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string
	BodyLimitBytes int64
	RateLimit      bool

	Chat          apierrors.HandlerWithError
	OAuthProxy    apierrors.HandlerWithError
	OAuthMetadata apierrors.HandlerWithError

	// WellKnown serves the gateway's own RFC 9728 protected-resource
	// metadata document. Mounted outside the /web admission chain because
	// the RFC requires it to be reachable without authentication.
	WellKnown http.Handler
}

// tenantFromRequest resolves the rate-limit tenant key from the bearer's
// unverified claims: the workspace claim when the token carries one, else
// the subject. Requests without a parseable bearer bucket together; on the
// /web routes they never get here, because requireBearer runs first and
// rejects them.
func tenantFromRequest(r *http.Request) string {
	_, identity, err := admission.Identify(r)
	if err != nil {
		return "anonymous"
	}
	ws, _ := identity.Claims["workspaceId"].(string)
	return admission.TenantID(ws, identity)
}

// requireBearer rejects requests without a well-formed bearer before any
// downstream work, so the UNAUTHORIZED check always precedes rate-limit
// accounting of an identified tenant and every policy-service call.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, identity, err := admission.Identify(r)
		if err != nil {
			apierrors.WriteEnvelope(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// Router assembles the gateway's full HTTP surface: the health endpoint
// (outside every admission stage) and the /web subtree with CORS, body
// limiting, bearer admission, and per-route-class rate limiting applied in
// that order.
func Router(opts RouterOptions) chi.Router {
	rt := NewRoutes(opts.Deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if opts.WellKnown != nil {
		r.Get(oauthproxy.WellKnownOAuthResourcePath, opts.WellKnown.ServeHTTP)
		r.Get(oauthproxy.WellKnownOAuthResourcePath+"/*", opts.WellKnown.ServeHTTP)
	}

	limited := func(class config.RouteClass) func(http.Handler) http.Handler {
		if !opts.RateLimit {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(opts.Limiter, class, tenantFromRequest)
	}

	r.Route("/web", func(r chi.Router) {
		r.Use(admission.CORS(opts.AllowedOrigins))
		r.Use(admission.BodyLimit(opts.BodyLimitBytes))
		r.Use(requireBearer)

		r.With(limited(config.RouteClassConnect)).Group(func(r chi.Router) {
			r.Post("/servers/validate", apierrors.Wrap(rt.Validate))
			r.Post("/servers/check-oauth", apierrors.Wrap(rt.CheckOAuth))
		})

		r.With(limited(config.RouteClassOther)).Group(func(r chi.Router) {
			r.Post("/tools/list", apierrors.Wrap(rt.ToolsList))
			r.Post("/resources/list", apierrors.Wrap(rt.ResourcesList))
			r.Post("/resources/read", apierrors.Wrap(rt.ResourcesRead))
			r.Post("/prompts/list", apierrors.Wrap(rt.PromptsList))
			r.Post("/prompts/list-multi", apierrors.Wrap(rt.PromptsListMulti))
			r.Post("/prompts/get", apierrors.Wrap(rt.PromptsGet))
			r.Post("/apps/mcp-apps/widget-content", apierrors.Wrap(rt.MCPAppsWidgetContent))
			r.Post("/apps/chatgpt-apps/widget-content", apierrors.Wrap(rt.ChatGPTAppsWidgetContent))
			r.Post("/apps/chatgpt-apps/upload-file", apierrors.Wrap(rt.UploadNotSupported))
			r.HandleFunc("/apps/chatgpt-apps/file/{id}", apierrors.Wrap(rt.UploadNotSupported))

			if opts.OAuthProxy != nil {
				r.Post("/oauth/proxy", apierrors.Wrap(opts.OAuthProxy))
			}
			if opts.OAuthMetadata != nil {
				r.Get("/oauth/metadata", apierrors.Wrap(opts.OAuthMetadata))
			}
		})

		r.With(limited(config.RouteClassExecute)).Group(func(r chi.Router) {
			r.Post("/tools/execute", apierrors.Wrap(rt.ToolsExecute))
			if opts.Chat != nil {
				r.Post("/chat-v2", apierrors.Wrap(opts.Chat))
			}
		})
	})

	return r
}
