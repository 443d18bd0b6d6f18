package apierrors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	noCause := NewNotFound("server not found", nil)
	assert.Equal(t, "NOT_FOUND: server not found", noCause.Error())

	withCause := NewServerUnreachable("dial failed", errors.New("connection refused"))
	assert.Equal(t, "SERVER_UNREACHABLE: dial failed: connection refused", withCause.Error())
	assert.ErrorIs(t, withCause, withCause.Cause)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Code]int{
		Unauthorized:        http.StatusUnauthorized,
		Forbidden:           http.StatusForbidden,
		NotFound:            http.StatusNotFound,
		ValidationError:     http.StatusBadRequest,
		RateLimited:         http.StatusTooManyRequests,
		FeatureNotSupported: http.StatusBadRequest,
		ServerUnreachable:   http.StatusBadGateway,
		Timeout:             http.StatusGatewayTimeout,
		Internal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %s", code)
	}
}

func TestAsWrapsUnknownErrors(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	wrapped := As(plain)
	require.NotNil(t, wrapped)
	assert.Equal(t, Internal, wrapped.Code)
	assert.Equal(t, plain, wrapped.Cause)

	same := As(wrapped)
	assert.Same(t, wrapped, same)
}

func TestWrapWritesEnvelopeOnlyWhenErrorReturned(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	handler := Wrap(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	})
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	handler2 := Wrap(func(http.ResponseWriter, *http.Request) error {
		return NewRateLimited("too many requests", nil)
	})
	handler2(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "RATE_LIMITED")
}
