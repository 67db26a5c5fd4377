package genfn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClientGenerate(t *testing.T) {
	var seen Request
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		requestID = r.Header.Get("X-Request-Id")
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"generatedFunctionText": "function evaluate(inputs) { return { y: 1 }; }",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	text, id, err := c.Generate(context.Background(), BuildRequest("y = 1", nil, []string{"y"}))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text == "" {
		t.Fatalf("empty generated text")
	}
	if id == "" || id != requestID {
		t.Fatalf("correlation id mismatch: returned %q, sent %q", id, requestID)
	}
	if len(seen.TargetVariableNames) != 1 || seen.TargetVariableNames[0] != "y" {
		t.Fatalf("request not transported: %+v", seen)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"generatedFunctionText": "function evaluate(inputs) { return { y: 1 }; }",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(2))
	if _, _, err := c.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("Generate should succeed after retry: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(3))
	if _, _, err := c.Generate(context.Background(), Request{}); err == nil {
		t.Fatalf("4xx should fail")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", got)
	}
}

func TestClientMissingResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, _, err := c.Generate(context.Background(), Request{}); err == nil {
		t.Fatalf("missing generatedFunctionText should fail")
	}
}
