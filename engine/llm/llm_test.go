package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaChatClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "llama3" {
			t.Errorf("expected model llama3, got %s", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaChatResp{Message: ollamaChatMessage{Role: "assistant", Content: "hello back"}})
	}))
	defer srv.Close()

	c := NewOllamaChatClient(srv.URL)
	reply, err := c.Complete(context.Background(), "llama3", []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("expected %q, got %q", "hello back", reply)
	}
}

func TestOllamaChatClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOllamaChatClient(srv.URL)
	if _, err := c.Complete(context.Background(), "llama3", nil); err == nil {
		t.Error("expected error for non-200 status")
	}
}
