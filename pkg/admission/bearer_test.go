package admission

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

func TestExtractBearerMissingHeader(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/web/tools/list", nil)
	_, err := ExtractBearer(r)
	require.Error(t, err)
	assert.Equal(t, apierrors.Unauthorized, apierrors.As(err).Code)
}

func TestExtractBearerMalformedScheme(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/web/tools/list", nil)
	r.Header.Set("Authorization", "Basic abc123")
	_, err := ExtractBearer(r)
	require.Error(t, err)
}

func TestExtractBearerSuccess(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/web/tools/list", nil)
	r.Header.Set("Authorization", "Bearer my-token")
	token, err := ExtractBearer(r)
	require.NoError(t, err)
	assert.Equal(t, "my-token", token)
}

func TestTenantIDPrefersWorkspaceOverNilIdentity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ws1", TenantID("ws1", nil))
}
