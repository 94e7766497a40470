package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "Invalid 'limit' parameter") }, http.StatusBadRequest, "Invalid 'limit' parameter"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db locked") }, http.StatusInternalServerError, "db locked"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "Decision log disabled") }, http.StatusServiceUnavailable, "Decision log disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.msg {
				t.Errorf("error = %q, want %q", body.Error, tt.msg)
			}
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONOK(w, map[string]int{"ticks": 3})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != "{\"ticks\":3}\n" {
		t.Errorf("body = %q", got)
	}
}
