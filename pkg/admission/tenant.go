package admission

import "github.com/mcpjam/hosted-gateway/pkg/auth"

// TenantID derives the request's tenant key: the workspace id when the
// caller supplied one, else the token subject. This is the sole rate-limit
// and actor key; it is never used for authorization decisions, only
// bucketing.
func TenantID(workspaceID string, identity *auth.Identity) string {
	if workspaceID != "" {
		return workspaceID
	}
	if identity != nil {
		return identity.Subject
	}
	return ""
}
