package rpcclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/filemesh/node/internal/wire"
)

func TestPingSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(time.Second, nil)
	if err := c.Ping(t.Context(), strings.TrimPrefix(srv.URL, "http://")); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestGetManifestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(time.Second, nil)
	_, err := c.GetManifest(t.Context(), strings.TrimPrefix(srv.URL, "http://"), "missing.txt")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestStoreChunkReturnsServerHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.StoreChunkResponse{Status: "chunk_saved", ChunkHash: "abc123"})
	}))
	defer srv.Close()

	c := New(time.Second, nil)
	hash, err := c.StoreChunk(t.Context(), strings.TrimPrefix(srv.URL, "http://"), []byte("data"))
	if err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("StoreChunk hash = %q, want abc123", hash)
	}
}

func TestSearchLocalDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.SearchResponse{
			Results: []wire.SearchResult{{Filename: "a.txt", Host: "peer-a"}},
			Partial: false,
		})
	}))
	defer srv.Close()

	c := New(time.Second, nil)
	results, err := c.SearchLocal(t.Context(), strings.TrimPrefix(srv.URL, "http://"), map[string]string{"genre": "scifi"})
	if err != nil {
		t.Fatalf("SearchLocal: %v", err)
	}
	if len(results) != 1 || results[0].Filename != "a.txt" {
		t.Errorf("SearchLocal results = %v, want one entry for a.txt", results)
	}
}

func TestPingPeerUnreachable(t *testing.T) {
	c := New(50*time.Millisecond, nil)
	if err := c.Ping(t.Context(), "127.0.0.1:1"); err == nil {
		t.Fatal("expected error dialing an unreachable address")
	}
}
