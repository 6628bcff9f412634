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

// Naive implements flooding placement and search (spec.md §4.5.1): chunks
// are placed by their own hash on the ring, the manifest by its filename
// (replication.RoutingKey), and search floods every known peer's local match
// endpoint.
type Naive struct{ deps }

// NewNaive constructs the Naive strategy.
func NewNaive(self string, st *store.Store, mem *membership.Membership, rpc *rpcclient.Client, repl *replication.Engine, replicationFactor, chunkSize int, log *zap.Logger) *Naive {
	if log == nil {
		log = zap.NewNop()
	}
	return &Naive{deps{self: self, store: st, mem: mem, rpc: rpc, repl: repl, log: log, replicationFactor: replicationFactor, chunkSize: chunkSize}}
}

// Upload splits localPath into chunks, places each by its own hash on the
// ring, and replicates the manifest to the filename's k ring successors.
func (n *Naive) Upload(ctx context.Context, localPath, filename string, metadata map[string]any) (wire.UploadResponse, error) {
	chunks, err := n.store.Split(localPath)
	if err != nil {
		return wire.UploadResponse{}, fmt.Errorf("split %s: %w", filename, err)
	}

	descriptors := make([]store.ChunkDescriptor, len(chunks))
	for i, c := range chunks {
		peers := n.repl.ReplicateChunk(ctx, c.Hash, c.Bytes)
		descriptors[i] = store.ChunkDescriptor{Index: c.Index, Hash: c.Hash, Peers: peers}
	}

	var totalSize int64
	for _, c := range chunks {
		totalSize += int64(len(c.Bytes))
	}

	m := store.Manifest{
		Filename:  filename,
		TotalSize: totalSize,
		ChunkSize: n.chunkSize,
		Chunks:    descriptors,
		Metadata:  metadata,
		UpdatedAt: time.Now().Unix(),
	}

	replicas := n.repl.ReplicateManifest(ctx, m)
	return wire.UploadResponse{Status: "stored", Manifest: m, Replicas: replicas}, nil
}

// Search floods query to every known peer's search_local, plus this peer's
// own local store, deduplicates by (filename, host), marks partial on any
// peer failure, and applies LWW reconciliation with async read-repair.
func (n *Naive) Search(ctx context.Context, query map[string]string) (wire.SearchResponse, error) {
	local, err := searchLocalManifests(n.store, n.self, query)
	if err != nil {
		return wire.SearchResponse{}, fmt.Errorf("search local: %w", err)
	}

	peers := n.mem.KnownPeers()
	remote := make([][]wire.SearchResult, len(peers))
	tasks := make([]func(context.Context) error, len(peers))
	for i, peer := range peers {
		i, peer := i, peer
		tasks[i] = func(ctx context.Context) error {
			results, err := n.rpc.SearchLocal(ctx, peer, query)
			if err != nil {
				return err
			}
			remote[i] = results
			return nil
		}
	}
	errs := fanout.Run(ctx, fanout.DefaultLimit, tasks)

	all := append([]wire.SearchResult{}, local...)
	partial := false
	for i, err := range errs {
		if err != nil {
			partial = true
			n.log.Warn("search_local fanout failed", zap.String("peer", peers[i]), zap.Error(err))
			continue
		}
		all = append(all, remote[i]...)
	}

	all = dedupeByFilenameHost(all)
	n.repl.Reconcile(ctx, all)

	return wire.SearchResponse{Results: all, Partial: partial}, nil
}
