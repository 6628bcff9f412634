package peer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filemesh/node/internal/config"
)

// newTestMetadataPeer builds a lone METADATA-strategy peer; being the only
// ring member, every sharded index key resolves to itself, so every
// SaveIndexEntry call lands in the local store regardless of salt.
func newTestMetadataPeer(t *testing.T) *Peer {
	t.Helper()
	cfg := config.Default()
	cfg.SelfID = "peer-a"
	cfg.DataDir = t.TempDir()
	cfg.ChunkSize = 8
	cfg.Mode = config.ModeMetadata
	cfg.NIndexShards = 4
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// TestMetadataUploadIndexesEachListElement exercises the list-valued
// metadata path: an attribute holding multiple values must be searchable by
// any one of them, each indexed independently rather than as one combined
// shard entry for the whole list.
func TestMetadataUploadIndexesEachListElement(t *testing.T) {
	p := newTestMetadataPeer(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "show.mkv")
	if err := os.WriteFile(src, []byte("episodic content"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	metadata := map[string]any{"tag": []any{"drama", "thriller"}}
	if _, err := p.Strat.Upload(ctx, src, "show.mkv", metadata); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	for _, tag := range []string{"drama", "thriller"} {
		resp, err := p.Strat.Search(ctx, map[string]string{"tag": tag})
		if err != nil {
			t.Fatalf("Search(%q): %v", tag, err)
		}
		if len(resp.Results) != 1 {
			t.Fatalf("Search(%q) results = %d, want 1", tag, len(resp.Results))
		}
		if resp.Results[0].Filename != "show.mkv" {
			t.Errorf("Search(%q) filename = %q, want show.mkv", tag, resp.Results[0].Filename)
		}
	}

	resp, err := p.Strat.Search(ctx, map[string]string{"tag": "comedy"})
	if err != nil {
		t.Fatalf("Search(comedy): %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("Search(comedy) results = %d, want 0", len(resp.Results))
	}
}
