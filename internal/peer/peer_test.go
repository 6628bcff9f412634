package peer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filemesh/node/internal/config"
)

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SelfID = "peer-a"
	cfg.DataDir = dir
	cfg.ChunkSize = 8
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestFetchRoundTripsLocalFile(t *testing.T) {
	p := newTestPeer(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(src, []byte("hello distributed world"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if _, err := p.Strat.Upload(ctx, src, "doc.txt", map[string]any{"genre": "docs"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	outDir := t.TempDir()
	res, err := p.Fetch(ctx, "doc.txt", outDir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != "fetched" {
		t.Fatalf("Status = %q, want fetched (missing=%v, reason=%q)", res.Status, res.Missing, res.Reason)
	}

	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	if string(got) != "hello distributed world" {
		t.Errorf("fetched content = %q, want %q", got, "hello distributed world")
	}
}

func TestFetchReturnsFailedForUnknownManifest(t *testing.T) {
	p := newTestPeer(t)
	res, err := p.Fetch(context.Background(), "nope.txt", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("Status = %q, want failed", res.Status)
	}
}

func TestFetchReturnsPartialWhenChunkUnavailable(t *testing.T) {
	p := newTestPeer(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(src, []byte("0123456789abcdef0123456789abcdef"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	resp, err := p.Strat.Upload(ctx, src, "big.bin", nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(resp.Manifest.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}

	// Simulate a lost chunk: delete it from the only place it's stored. Its
	// peer list names only this peer, which fetchChunk skips after the local
	// miss, so it has nowhere else to look.
	victim := resp.Manifest.Chunks[0]
	chunkPath := filepath.Join(p.Store.Path(), victim.Hash)
	if err := os.Remove(chunkPath); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}

	res, err := p.Fetch(ctx, "big.bin", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != "partial" {
		t.Fatalf("Status = %q, want partial", res.Status)
	}
	if len(res.Missing) == 0 {
		t.Error("expected at least one missing chunk hash")
	}
}

func TestLeaveWithNoKnownPeersMovesNothing(t *testing.T) {
	p := newTestPeer(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "solo.txt")
	if err := os.WriteFile(src, []byte("alone on the ring"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if _, err := p.Strat.Upload(ctx, src, "solo.txt", nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	res, err := p.Leave(ctx)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if res.ManifestsMoved != 0 {
		t.Errorf("ManifestsMoved = %d, want 0 (single-node ring, no successor to move to)", res.ManifestsMoved)
	}
}
