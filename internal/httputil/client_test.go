package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stats struct {
	Ticks uint64 `json:"ticks"`
}

func TestGetJSON_Mock(t *testing.T) {
	c := NewMockHTTPClient().
		Handle("/api/stats", http.StatusOK, `{"ticks":42}`).
		Handle("/api/decisions", http.StatusServiceUnavailable, `{"error":"Decision log disabled"}`).
		Fail("/api/config", errors.New("connection refused"))

	var s stats
	if err := GetJSON(context.Background(), c, "http://planner/api/stats", &s); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if s.Ticks != 42 {
		t.Errorf("ticks = %d, want 42", s.Ticks)
	}

	err := GetJSON(context.Background(), c, "http://planner/api/decisions", &s)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable || se.Message != "Decision log disabled" {
		t.Errorf("StatusError = %+v", se)
	}

	if err := GetJSON(context.Background(), c, "http://planner/api/config", &s); err == nil {
		t.Error("expected transport error")
	}
	err = GetJSON(context.Background(), c, "http://planner/missing", &s)
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("missing path: %v", err)
	}

	want := []string{"/api/stats", "/api/decisions", "/api/config", "/missing"}
	got := c.Requests()
	if len(got) != len(want) {
		t.Fatalf("requests = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetJSON_RealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		switch r.URL.Path {
		case "/api/stats":
			WriteJSONOK(w, stats{Ticks: 7})
		case "/garbage":
			w.Write([]byte("not json"))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	var s stats
	if err := GetJSON(context.Background(), srv.Client(), srv.URL+"/api/stats", &s); err != nil || s.Ticks != 7 {
		t.Fatalf("GetJSON = %v, ticks %d", err, s.Ticks)
	}
	if err := GetJSON(context.Background(), nil, srv.URL+"/garbage", &s); err == nil {
		t.Error("expected decode error")
	}
	err := GetJSON(context.Background(), srv.Client(), srv.URL+"/other", &s)
	if err == nil || err.Error() != "GET "+srv.URL+"/other: 418 I'm a teapot" {
		t.Errorf("err = %v", err)
	}
}
