package admission

import (
	"errors"
	"net/http"
)

// bodyLimitResponseWriter wraps an http.ResponseWriter so that, if the
// wrapped request's body reader actually hit its MaxBytesReader limit, any
// 4xx the downstream handler would have written because its JSON decode
// failed partway through is rewritten to 413. A handler's own, unrelated
// validation 4xx (body read succeeded, a field was merely invalid) passes
// through untouched because limitHit is never set for it.
type bodyLimitResponseWriter struct {
	http.ResponseWriter
	limitHit    *bool
	wroteHeader bool
}

func (w *bodyLimitResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if *w.limitHit && status == http.StatusBadRequest {
		status = http.StatusRequestEntityTooLarge
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *bodyLimitResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so streaming routes behind the
// body limit can still flush each frame.
func (w *bodyLimitResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// limitTrackingReader wraps the body so reads past http.MaxBytesReader's
// limit are observed and recorded, without otherwise changing behavior.
type limitTrackingReader struct {
	inner    interface {
		Read(p []byte) (int, error)
		Close() error
	}
	limitHit *bool
}

func (r *limitTrackingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			*r.limitHit = true
		}
	}
	return n, err
}

func (r *limitTrackingReader) Close() error { return r.inner.Close() }

// BodyLimit caps every request body at maxBytes (1 MiB by default) and
// ensures a response that would otherwise read as 400 because the decoder
// ran out of bytes is reported as 413 instead: a body exceeding the limit
// is always 413, never a generic decode-failure 400.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
				return
			}

			limitHit := false
			r.Body = &limitTrackingReader{
				inner:    http.MaxBytesReader(w, r.Body, maxBytes),
				limitHit: &limitHit,
			}

			wrapped := &bodyLimitResponseWriter{ResponseWriter: w, limitHit: &limitHit}
			next.ServeHTTP(wrapped, r)
		})
	}
}
