package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/fanout"
	"github.com/filemesh/node/internal/membership"
	"github.com/filemesh/node/internal/replication"
	"github.com/filemesh/node/internal/rpcclient"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

// partitionAttr is the metadata key Semantic partitions on (spec.md
// §4.5.3).
const partitionAttr = "genre"

// Semantic implements document partitioning (spec.md §4.5.3): every chunk,
// the manifest, and its local index entry for one file all go to the k ring
// successors of a normalized partition key, whose first node is the
// partition's owner, enabling O(1) routed search when the query names that
// attribute.
type Semantic struct {
	deps
	naive *Naive
}

// NewSemantic constructs the Semantic strategy.
func NewSemantic(self string, st *store.Store, mem *membership.Membership, rpc *rpcclient.Client, repl *replication.Engine, replicationFactor, chunkSize int, log *zap.Logger) *Semantic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Semantic{
		deps:  deps{self: self, store: st, mem: mem, rpc: rpc, repl: repl, log: log, replicationFactor: replicationFactor, chunkSize: chunkSize},
		naive: NewNaive(self, st, mem, rpc, repl, replicationFactor, chunkSize, log),
	}
}

// partitionKey computes spec.md §4.5.3's placement key: normalized genre,
// falling back to normalized title, falling back to "unknown".
func partitionKey(metadata map[string]any) string {
	if v, ok := metadata[partitionAttr]; ok {
		if n := normalize(fmt.Sprint(v)); n != "" {
			return n
		}
	}
	if v, ok := metadata["title"]; ok {
		if n := normalize(fmt.Sprint(v)); n != "" {
			return n
		}
	}
	return "unknown"
}

// Upload routes every chunk, the manifest, and its index entry to the k
// ring successors of the partition key, storing the chosen key on the
// manifest so anti-entropy can find the right primary later (the
// placement-key-override fix spec.md §4.5.3 calls out).
func (s *Semantic) Upload(ctx context.Context, localPath, filename string, metadata map[string]any) (wire.UploadResponse, error) {
	chunks, err := s.store.Split(localPath)
	if err != nil {
		return wire.UploadResponse{}, fmt.Errorf("split %s: %w", filename, err)
	}

	key := partitionKey(metadata)
	targets := s.mem.Ring().Successors(key, s.replicationFactor)

	descriptors := make([]store.ChunkDescriptor, len(chunks))
	var totalSize int64
	for i, c := range chunks {
		s.placeChunk(ctx, targets, c.Hash, c.Bytes)
		descriptors[i] = store.ChunkDescriptor{Index: c.Index, Hash: c.Hash, Peers: targets}
		totalSize += int64(len(c.Bytes))
	}

	m := store.Manifest{
		Filename:     filename,
		TotalSize:    totalSize,
		ChunkSize:    s.chunkSize,
		Chunks:       descriptors,
		Metadata:     metadata,
		UpdatedAt:    time.Now().Unix(),
		PlacementKey: key,
	}

	replicas := s.repl.ReplicateManifest(ctx, m)

	entry := store.IndexEntry{Filename: filename, Metadata: metadata, Host: targets[0]}
	s.placeIndexEntry(ctx, targets, key, entry)

	return wire.UploadResponse{Status: "stored", Manifest: m, Replicas: replicas}, nil
}

func (s *Semantic) placeChunk(ctx context.Context, targets []string, hash string, data []byte) {
	tasks := make([]func(context.Context) error, 0, len(targets))
	for _, target := range targets {
		if target == s.self {
			if err := s.store.SaveChunk(hash, data); err != nil {
				s.log.Error("save local chunk failed", zap.String("hash", hash), zap.Error(err))
			}
			continue
		}
		target := target
		tasks = append(tasks, func(ctx context.Context) error {
			_, err := s.rpc.StoreChunk(ctx, target, data)
			return err
		})
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
}

func (s *Semantic) placeIndexEntry(ctx context.Context, targets []string, key string, entry store.IndexEntry) {
	for _, target := range targets {
		if target == s.self {
			if err := s.store.SaveIndexEntry(key, entry); err != nil {
				s.log.Warn("save local index entry failed", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		if err := s.rpc.IndexAdd(ctx, target, key, entry); err != nil {
			s.log.Warn("index/add failed", zap.String("peer", target), zap.String("key", key), zap.Error(err))
		}
	}
}

// Search routes directly to the single node responsible for the query's
// partition attribute when present (O(1) lookup); otherwise it broadcasts
// like Naive.
func (s *Semantic) Search(ctx context.Context, query map[string]string) (wire.SearchResponse, error) {
	value, ok := query[partitionAttr]
	if !ok || normalize(value) == "" {
		return s.naive.Search(ctx, query)
	}

	target := s.mem.Ring().Get(normalize(value))
	if target == "" {
		return wire.SearchResponse{}, nil
	}

	var results []wire.SearchResult
	var err error
	if target == s.self {
		results, err = searchLocalManifests(s.store, s.self, query)
	} else {
		results, err = s.rpc.SearchLocal(ctx, target, query)
	}

	partial := err != nil
	if partial {
		s.log.Warn("semantic search_local failed", zap.String("peer", target), zap.Error(err))
		results = nil
	}

	results = dedupeByFilenameHost(results)
	s.repl.Reconcile(ctx, results)
	return wire.SearchResponse{Results: results, Partial: partial}, nil
}
