package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/fanout"
	"github.com/filemesh/node/internal/membership"
	"github.com/filemesh/node/internal/replication"
	"github.com/filemesh/node/internal/rpcclient"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

// Metadata implements the Global-Secondary-Index-with-salting strategy
// (spec.md §4.5.2): it wraps Naive's upload for chunk/manifest placement
// and additionally fans index shard entries out across N_SHARDS nodes per
// attribute, salted to spread load. Search performs a scatter-gather over
// those shards and intersects candidates by filename across attributes.
type Metadata struct {
	deps
	naive   *Naive
	nShards int
}

// NewMetadata constructs the Metadata strategy.
func NewMetadata(self string, st *store.Store, mem *membership.Membership, rpc *rpcclient.Client, repl *replication.Engine, replicationFactor, chunkSize, nShards int, log *zap.Logger) *Metadata {
	if log == nil {
		log = zap.NewNop()
	}
	naive := NewNaive(self, st, mem, rpc, repl, replicationFactor, chunkSize, log)
	return &Metadata{
		deps:    deps{self: self, store: st, mem: mem, rpc: rpc, repl: repl, log: log, replicationFactor: replicationFactor, chunkSize: chunkSize},
		naive:   naive,
		nShards: nShards,
	}
}

func shardedKey(attr, value string, salt int) string {
	return fmt.Sprintf("%s:%s:%d", attr, normalize(value), salt)
}

// Upload runs Naive's chunk/manifest placement, then writes one
// {filename, metadata, host} index entry per metadata attribute at a
// randomly salted shard, routed by SHA-1 of the sharded key.
func (md *Metadata) Upload(ctx context.Context, localPath, filename string, metadata map[string]any) (wire.UploadResponse, error) {
	resp, err := md.naive.Upload(ctx, localPath, filename, metadata)
	if err != nil {
		return resp, err
	}

	entry := store.IndexEntry{Filename: filename, Metadata: metadata, Host: md.self}
	for attr, value := range metadata {
		// A list-valued attribute gets one independently-salted shard write
		// per element rather than one shard for the whole list, so a search
		// on any single element finds this file.
		for _, v := range metadataValues(value) {
			salt := rand.Intn(md.nShards)
			key := shardedKey(attr, v, salt)
			target := md.mem.Ring().Get(store.Sha1HexString(key))
			if target == "" {
				continue
			}
			if target == md.self {
				if err := md.store.SaveIndexEntry(key, entry); err != nil {
					md.log.Warn("save local index entry failed", zap.String("key", key), zap.Error(err))
				}
				continue
			}
			if err := md.rpc.IndexAdd(ctx, target, key, entry); err != nil {
				md.log.Warn("index/add failed", zap.String("peer", target), zap.String("key", key), zap.Error(err))
			}
		}
	}
	return resp, nil
}

// Search scatter-gathers every non-filename query attribute across its
// N_SHARDS candidate nodes, intersects the resulting filenames, optionally
// filters by an explicit "filename" clause, then resolves each surviving
// filename's manifest from its owning host.
func (md *Metadata) Search(ctx context.Context, query map[string]string) (wire.SearchResponse, error) {
	attrs := make(map[string]string, len(query))
	filenameFilter, hasFilename := "", false
	for k, v := range query {
		if k == "filename" {
			filenameFilter, hasFilename = normalize(v), true
			continue
		}
		attrs[k] = v
	}

	if len(attrs) == 0 {
		// Nothing indexed to scatter-gather on; fall back to flooding.
		return md.naive.Search(ctx, query)
	}

	partial := false
	var intersected map[string]store.IndexEntry
	for attr, value := range attrs {
		entries, attrPartial := md.gatherShards(ctx, attr, value)
		if attrPartial {
			partial = true
		}
		if intersected == nil {
			intersected = entries
			continue
		}
		next := make(map[string]store.IndexEntry, len(intersected))
		for fname, e := range intersected {
			if _, ok := entries[fname]; ok {
				next[fname] = e
			}
		}
		intersected = next
	}

	if hasFilename {
		for fname := range intersected {
			if normalize(fname) != filenameFilter {
				delete(intersected, fname)
			}
		}
	}

	results, resolvePartial := md.resolveManifests(ctx, intersected)
	partial = partial || resolvePartial

	results = dedupeByFilenameHost(results)
	md.repl.Reconcile(ctx, results)
	return wire.SearchResponse{Results: results, Partial: partial}, nil
}

// gatherShards fetches index entries for attr=value from all N_SHARDS
// salted shard owners, merging them into one filename-keyed map.
func (md *Metadata) gatherShards(ctx context.Context, attr, value string) (map[string]store.IndexEntry, bool) {
	var mu sync.Mutex
	merged := make(map[string]store.IndexEntry)
	partial := false

	tasks := make([]func(context.Context) error, md.nShards)
	for s := 0; s < md.nShards; s++ {
		s := s
		tasks[s] = func(ctx context.Context) error {
			key := shardedKey(attr, value, s)
			target := md.mem.Ring().Get(store.Sha1HexString(key))
			if target == "" {
				return nil
			}
			var entries []store.IndexEntry
			var err error
			if target == md.self {
				entries, err = md.store.GetIndexEntries(key)
			} else {
				entries, err = md.rpc.IndexGet(ctx, target, key)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			for _, e := range entries {
				merged[e.Filename] = e
			}
			mu.Unlock()
			return nil
		}
	}
	errs := fanout.Run(ctx, fanout.DefaultLimit, tasks)
	for i, err := range errs {
		if err != nil {
			partial = true
			md.log.Warn("index shard fetch failed", zap.String("attr", attr), zap.Int("shard", i), zap.Error(err))
		}
	}
	return merged, partial
}

// resolveManifests fetches the full manifest for each candidate filename
// from its recorded host, building complete SearchResult rows.
func (md *Metadata) resolveManifests(ctx context.Context, candidates map[string]store.IndexEntry) ([]wire.SearchResult, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	type keyed struct {
		filename, host string
	}
	var targets []keyed
	for fname, e := range candidates {
		targets = append(targets, keyed{filename: fname, host: e.Host})
	}

	results := make([]wire.SearchResult, len(targets))
	tasks := make([]func(context.Context) error, len(targets))
	for i, t := range targets {
		i, t := i, t
		tasks[i] = func(ctx context.Context) error {
			var m store.Manifest
			var err error
			if t.host == md.self {
				m, err = md.store.LoadManifest(t.filename)
			} else {
				m, err = md.rpc.GetManifest(ctx, t.host, t.filename)
			}
			if err != nil {
				return err
			}
			results[i] = wire.SearchResult{
				Filename:  t.filename,
				Metadata:  m.Metadata,
				Host:      t.host,
				UpdatedAt: m.UpdatedAt,
				Manifest:  m,
			}
			return nil
		}
	}
	errs := fanout.Run(ctx, fanout.DefaultLimit, tasks)

	out := make([]wire.SearchResult, 0, len(results))
	partial := false
	for i, err := range errs {
		if err != nil {
			partial = true
			md.log.Warn("manifest resolution failed", zap.String("filename", targets[i].filename), zap.String("host", targets[i].host), zap.Error(err))
			continue
		}
		out = append(out, results[i])
	}
	return out, partial
}
