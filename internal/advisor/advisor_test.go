package advisor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"billbook/internal/core"
)

func TestAsk_Disabled(t *testing.T) {
	c := New("", time.Second, nil)
	_, err := c.Ask(context.Background(), "how am I doing?", nil)
	if !errors.Is(err, core.ErrAdvisorUnavailable) {
		t.Fatalf("Ask() error = %v, want ErrAdvisorUnavailable", err)
	}
}

func TestAsk_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" {
			t.Errorf("path = %v, want /ask", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %v, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"all bills covered"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	answer, err := c.Ask(context.Background(), "how am I doing?", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != "all bills covered" {
		t.Errorf("answer = %q, want %q", answer, "all bills covered")
	}
}

func TestAsk_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, err := c.Ask(context.Background(), "q", nil)
	if !errors.Is(err, core.ErrAdvisorUnavailable) {
		t.Fatalf("Ask() error = %v, want ErrAdvisorUnavailable", err)
	}
}

func TestAsk_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, err := c.Ask(context.Background(), "q", nil)
	if !errors.Is(err, core.ErrAdvisorUnavailable) {
		t.Fatalf("Ask() error = %v, want ErrAdvisorUnavailable", err)
	}
}
