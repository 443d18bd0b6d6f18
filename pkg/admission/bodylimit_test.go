package admission

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyLimitWithinBound(t *testing.T) {
	t.Parallel()
	const limit = 1 << 10
	body := bytes.NewBuffer(make([]byte, limit-1))
	r := httptest.NewRequest(http.MethodPost, "/test", body)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	BodyLimit(limit)(next).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyLimitExactlyAtBound(t *testing.T) {
	t.Parallel()
	const limit = 1 << 10
	body := bytes.NewBuffer(make([]byte, limit))
	r := httptest.NewRequest(http.MethodPost, "/test", body)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	BodyLimit(limit)(next).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyLimitRejectsOversizedContentLength(t *testing.T) {
	t.Parallel()
	const limit = 1 << 10
	body := bytes.NewBuffer(make([]byte, limit+1))
	r := httptest.NewRequest(http.MethodPost, "/test", body)
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	BodyLimit(limit)(next).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyLimitConvertsDecodeFailureTo413(t *testing.T) {
	t.Parallel()
	const limit = 64
	oversized := bytes.Repeat([]byte(`{"key":"value"},`), 100)
	payload := append([]byte("["), oversized...)
	payload = append(payload, ']')

	r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(payload))
	r.ContentLength = limit - 1 // lie, so the early Content-Length check doesn't fire
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			http.Error(w, "decode failed", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	BodyLimit(limit)(next).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBodyLimitPreservesUnrelatedValidationErrors(t *testing.T) {
	t.Parallel()
	const limit = 1 << 20
	r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"name":""}`))
	rec := httptest.NewRecorder()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			http.Error(w, "decode failed", http.StatusBadRequest)
			return
		}
		if data["name"] == "" {
			http.Error(w, "name must not be empty", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	BodyLimit(limit)(next).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
