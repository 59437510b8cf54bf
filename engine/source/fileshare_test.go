package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFileShareAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/list" {
			w.Write([]byte(`{"entries":[{"name":"doc1.pdf","download_url":"` + "http://" + r.Host + `/dl/1` + `","mime_type":"application/pdf"}]}`))
			return
		}
		if r.URL.Path == "/dl/1" {
			w.Write([]byte("pdf bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewFileShareAdapter(FileShareConfig{})
	docCh, errCh := a.Fetch(context.Background(), srv.URL+"/list", 0)

	var got []Document
	for d := range docCh {
		got = append(got, d)
	}
	for err := range errCh {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 document, got %d", len(got))
	}
	if got[0].DisplayName != "doc1.pdf" {
		t.Errorf("expected doc1.pdf, got %s", got[0].DisplayName)
	}
}

func TestFileShareAdapter_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewFileShareAdapter(FileShareConfig{})
	docCh, errCh := a.Fetch(context.Background(), srv.URL+"/list", 0)

	for range docCh {
		t.Fatal("expected no documents")
	}
	var gotErr bool
	for range errCh {
		gotErr = true
	}
	if !gotErr {
		t.Fatal("expected an error on unauthorized listing")
	}
}
