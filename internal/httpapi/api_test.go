package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/filemesh/node/internal/config"
	"github.com/filemesh/node/internal/peer"
	"github.com/filemesh/node/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.SelfID = "peer-a"
	cfg.DataDir = t.TempDir()
	cfg.ChunkSize = 16

	p, err := peer.New(cfg, nil)
	if err != nil {
		t.Fatalf("peer.New: %v", err)
	}
	srv := NewServer(p, DefaultConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp
}

func TestMetricsRouteExposesRegisteredCollectors(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.peer.Metrics.ChunksStored.Inc()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(body, []byte("filemesh_chunks_stored_total")) {
		t.Errorf("metrics body missing filemesh_chunks_stored_total, got:\n%s", body)
	}
}

func TestPingReturnsPong(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/peer/ping")
	if err != nil {
		t.Fatalf("GET ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUploadWithSimulateContentThenFetchRoundTrips(t *testing.T) {
	_, ts := newTestServer(t)

	var uploadResp wire.UploadResponse
	resp := postJSON(t, ts.URL+"/upload", UploadRequest{
		Filename:        "report.pdf",
		Metadata:        map[string]any{"genre": "docs"},
		SimulateContent: true,
		Size:            40,
	}, &uploadResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	if uploadResp.Status != "stored" {
		t.Fatalf("upload status field = %q, want stored", uploadResp.Status)
	}
	if uploadResp.Manifest.TotalSize != 40 {
		t.Errorf("TotalSize = %d, want 40", uploadResp.Manifest.TotalSize)
	}

	fetchResp, err := http.Get(ts.URL + "/fetch/report.pdf")
	if err != nil {
		t.Fatalf("GET fetch: %v", err)
	}
	defer fetchResp.Body.Close()
	var fr wire.FetchResponse
	if err := json.NewDecoder(fetchResp.Body).Decode(&fr); err != nil {
		t.Fatalf("decode fetch response: %v", err)
	}
	if fr.Status != "fetched" {
		t.Fatalf("fetch status = %q, want fetched (missing=%v reason=%q)", fr.Status, fr.Missing, fr.Reason)
	}
}

func TestUploadWithoutDataOrSimulateIsBadRequest(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/upload", UploadRequest{Filename: "x.txt"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSimulatedContentIsDeterministic(t *testing.T) {
	a := simulatedContent("same-name.bin", 64)
	b := simulatedContent("same-name.bin", 64)
	if !bytes.Equal(a, b) {
		t.Error("simulatedContent should be deterministic for the same filename and size")
	}
	c := simulatedContent("different-name.bin", 64)
	if bytes.Equal(a, c) {
		t.Error("simulatedContent should differ across filenames")
	}
}

func TestGetChunkMissingReturns404(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/peer/get_chunk/deadbeef")
	if err != nil {
		t.Fatalf("GET get_chunk: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLeaveRejectsOtherPeerID(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/leave/some-other-peer", "application/json", nil)
	if err != nil {
		t.Fatalf("POST leave: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestJoinAddsCallerToKnownPeers(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/peer/join/peer-b", "application/json", nil)
	if err != nil {
		t.Fatalf("POST join: %v", err)
	}
	defer resp.Body.Close()
	var jr wire.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		t.Fatalf("decode join response: %v", err)
	}
	found := false
	for _, p := range jr.KnownPeers {
		if p == "peer-b" {
			found = true
		}
	}
	if !found {
		t.Errorf("known_peers = %v, want peer-b included", jr.KnownPeers)
	}
}

func TestSearchFindsUploadedFile(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/upload", UploadRequest{
		Filename:        "matrix.avi",
		Metadata:        map[string]any{"actor": "Keanu Reeves", "genre": "Sci-Fi"},
		SimulateContent: true,
		Size:            20,
	}, &wire.UploadResponse{})

	var sr wire.SearchResponse
	postJSON(t, ts.URL+"/search", map[string]string{"actor": "keanu reeves"}, &sr)
	if len(sr.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(sr.Results))
	}
	if sr.Results[0].Filename != "matrix.avi" {
		t.Errorf("Filename = %q, want matrix.avi", sr.Results[0].Filename)
	}
}
