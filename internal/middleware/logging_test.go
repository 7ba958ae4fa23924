package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name:   "GET request",
			method: http.MethodGet,
			path:   "/api/images",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "implicit status",
			method: http.MethodGet,
			path:   "/api/folders",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("OK"))
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "partial content",
			method: http.MethodGet,
			path:   "/serve/s/f.mp4",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("part"))
			},
			expectedStatus: http.StatusPartialContent,
		},
		{
			name:   "bad gateway",
			method: http.MethodPost,
			path:   "/api/upload/assemble",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("chunk 3 failed"))
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Range", "bytes=0-3")
			rec := httptest.NewRecorder()

			LoggingMiddleware(tt.handler).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if rec.Body.Len() == 0 {
				t.Error("Handler did not write response")
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated {
		t.Errorf("Expected statusCode %d, got %d", http.StatusCreated, rw.statusCode)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected underlying recorder code %d, got %d", http.StatusCreated, rec.Code)
	}
}

func TestResponseWriter_CountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	large := strings.Repeat("x", 10000)
	for _, chunk := range []string{"Hello, ", "World!", large} {
		if _, err := rw.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	want := int64(len("Hello, World!") + len(large))
	if rw.written != want {
		t.Errorf("Expected written count %d, got %d", want, rw.written)
	}
	if int64(rec.Body.Len()) != want {
		t.Errorf("Expected body of %d bytes, got %d", want, rec.Body.Len())
	}

	// Must not panic with a flushing recorder.
	rw.Flush()
	if !rec.Flushed {
		t.Error("Flush was not forwarded")
	}
}

func TestRouteLabel(t *testing.T) {
	var label string
	r := chi.NewRouter()
	r.Get("/serve/{sessionId}/{filename}", func(w http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/serve/session_1/a.mp4", nil))
	if label != "/serve/{sessionId}/{filename}" {
		t.Errorf("routeLabel = %q, want the route pattern", label)
	}

	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("routeLabel without a route = %q", got)
	}
}
