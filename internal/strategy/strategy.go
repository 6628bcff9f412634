// Package strategy implements the three interchangeable placement/search
// variants spec.md §4.5 describes (Naive, Metadata, Semantic) behind one
// shared interface. The Metadata variant wraps Naive's upload and adds
// index writes; the Semantic variant overrides placement key — composition
// over a parallel class hierarchy, as spec.md §9 recommends.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/membership"
	"github.com/filemesh/node/internal/replication"
	"github.com/filemesh/node/internal/rpcclient"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

// Strategy is the shared interface every variant implements.
type Strategy interface {
	// Upload splits localPath into chunks, places them and a manifest
	// according to the variant's policy, and returns the stored manifest
	// plus the peers holding a copy of it.
	Upload(ctx context.Context, localPath, filename string, metadata map[string]any) (wire.UploadResponse, error)
	// Search answers query according to the variant's placement/routing
	// policy, aggregating partial failures into Partial.
	Search(ctx context.Context, query map[string]string) (wire.SearchResponse, error)
}

// deps bundles the collaborators every variant needs. Embedded (not
// referenced through an interface) since all three variants share the same
// concrete dependencies — only the placement/query policy differs.
type deps struct {
	self  string
	store *store.Store
	mem   *membership.Membership
	rpc   *rpcclient.Client
	repl  *replication.Engine
	log   *zap.Logger

	replicationFactor int
	chunkSize         int
}

// normalize lowercases and trims a query/metadata value, spec.md §4.5.2's
// normalization rule (also applied to the Semantic partition key, §4.5.3).
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// metadataValues stringifies one metadata attribute's value for GSI
// indexing: a list-valued attribute yields one string per element (spec.md
// §4.5.2's "stringify lists by iterating each element"), a scalar yields a
// single-element slice. JSON decodes a list into []any, so that's the case
// actually reached from the request surface; []string is handled too for
// values built directly in Go.
func metadataValues(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, len(vv))
		for i, e := range vv {
			out[i] = fmt.Sprint(e)
		}
		return out
	case []string:
		return vv
	default:
		return []string{fmt.Sprint(vv)}
	}
}

// matchLocal implements the per-field AND match rule of spec.md §4.5.1/§9:
// every (key, value) pair in query must match, case-insensitively; the
// special key "filename" compares against the manifest's filename rather
// than its metadata map.
func matchLocal(m store.Manifest, query map[string]string) bool {
	for k, v := range query {
		want := normalize(v)
		if k == "filename" {
			if normalize(m.Filename) != want {
				return false
			}
			continue
		}
		got, ok := m.Metadata[k]
		if !ok || normalize(fmt.Sprint(got)) != want {
			return false
		}
	}
	return true
}

// SearchLocal scans this peer's own manifests for matches against query,
// per the per-field AND match rule (spec.md §4.5.1/§9). Exported so the
// request surface's search_local handler and every Strategy variant share
// one implementation.
func SearchLocal(st *store.Store, self string, query map[string]string) ([]wire.SearchResult, error) {
	return searchLocalManifests(st, self, query)
}

// searchLocalManifests scans this peer's own manifests for matches,
// backing both the search_local RPC handler and every variant's local
// contribution to a fanned-out search.
func searchLocalManifests(st *store.Store, self string, query map[string]string) ([]wire.SearchResult, error) {
	manifests, err := st.ListLocalManifests()
	if err != nil {
		return nil, err
	}
	var results []wire.SearchResult
	for _, m := range manifests {
		if !matchLocal(m, query) {
			continue
		}
		results = append(results, wire.SearchResult{
			Filename:  m.Filename,
			Metadata:  m.Metadata,
			Host:      self,
			UpdatedAt: m.UpdatedAt,
			Manifest:  m,
		})
	}
	return results, nil
}

// dedupeByFilenameHost removes duplicate (filename, host) pairs, keeping
// the first occurrence (spec.md §4.5.1: "results deduplicated by
// (filename, host)").
func dedupeByFilenameHost(results []wire.SearchResult) []wire.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]wire.SearchResult, 0, len(results))
	for _, r := range results {
		key := r.Filename + "\x00" + r.Host
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
