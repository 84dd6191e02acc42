package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
}

func TestValidateKnownModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/org/model" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header=%q", got)
		}
		_, _ = w.Write([]byte(`{"id":"org/model","gated":false}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv).Validate(context.Background(), "org/model", "tok")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if info.ID != "org/model" || info.Gated {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestValidateGatedString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"meta/gated-model","gated":"manual"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv).Validate(context.Background(), "meta/gated-model", "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !info.Gated {
		t.Fatalf("expected gated model")
	}
}

func TestValidateNotFoundWithSuggestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			http.NotFound(w, r)
			return
		}
		// search endpoint
		_, _ = w.Write([]byte(`[{"id":"org/tiny-model"}]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Validate(context.Background(), "tiny-model", "")
	if err == nil {
		t.Fatalf("expected error for unknown model")
	}
	if !strings.Contains(err.Error(), "did you mean org/tiny-model") {
		t.Fatalf("expected suggestion in error, got %v", err)
	}
}

func TestValidateUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Validate(context.Background(), "org/model", "bad")
	if err == nil || !strings.Contains(err.Error(), "not accessible") {
		t.Fatalf("expected access error, got %v", err)
	}
}

func TestValidateEmptyID(t *testing.T) {
	c := NewClient()
	if _, err := c.Validate(context.Background(), "   ", ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
