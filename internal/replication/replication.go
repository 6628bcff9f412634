// Package replication implements primary-driven replication and
// anti-entropy (spec.md §4.4): the write path ships a manifest and its
// chunks to k ring successors, the anti-entropy tick repairs gaps, and
// search-result aggregation applies last-writer-wins reconciliation with
// asynchronous read-repair of stale replicas. Health-bucket thresholds are
// adapted from the teacher's Reed-Solomon health scoring in
// pkg/meshstorage/erasure.go, applied here to full-copy replica counts
// instead of erasure shard counts.
package replication

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/fanout"
	"github.com/filemesh/node/internal/membership"
	"github.com/filemesh/node/internal/metrics"
	"github.com/filemesh/node/internal/rpcclient"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

// Health buckets, adapted from the teacher's erasure-coding health scoring:
// the fraction of the expected k copies that are actually present.
const (
	HealthExcellent = "excellent" // all k copies present
	HealthGood      = "good"      // >= 2/3 of k present
	HealthDegraded  = "degraded"  // >= 1/3 of k present
	HealthCritical  = "critical"  // < 1/3 of k present
)

// Classify buckets a replica count against the replication factor.
func Classify(present, k int) string {
	if k <= 0 {
		k = 1
	}
	ratio := float64(present) / float64(k)
	switch {
	case ratio >= 1.0:
		return HealthExcellent
	case ratio >= 2.0/3.0:
		return HealthGood
	case ratio >= 1.0/3.0:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// RoutingKey returns the key anti-entropy and placement use to ask the
// ring who is responsible for a manifest: PlacementKey when the Semantic
// strategy set one, filename otherwise. This is the "key correctness rule"
// of spec.md §4.4 and the placement-key-override fix of §4.5.3 — using
// filename unconditionally here would make anti-entropy misidentify the
// primary for semantically placed data.
func RoutingKey(m store.Manifest) string {
	if m.PlacementKey != "" {
		return m.PlacementKey
	}
	return m.Filename
}

// Engine owns the anti-entropy loop and search-result reconciliation for
// one peer.
type Engine struct {
	self              string
	store             *store.Store
	membership        *membership.Membership
	rpc               *rpcclient.Client
	replicationFactor int
	metrics           *metrics.Metrics
	log               *zap.Logger
}

// New creates a replication Engine.
func New(self string, st *store.Store, mem *membership.Membership, rpc *rpcclient.Client, replicationFactor int, m *metrics.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		self:              self,
		store:             st,
		membership:        mem,
		rpc:               rpc,
		replicationFactor: replicationFactor,
		metrics:           m,
		log:               log,
	}
}

// ReplicateManifest saves m to every one of its k ring successors,
// best-effort for the remote ones (spec.md §4.4's write-path replication:
// failures are not retried synchronously, anti-entropy heals the gap).
// Local storage, when self is among the targets, is synchronous so the
// caller can rely on the manifest existing locally once this returns.
func (e *Engine) ReplicateManifest(ctx context.Context, m store.Manifest) []string {
	targets := e.membership.Ring().Successors(RoutingKey(m), e.replicationFactor)

	tasks := make([]func(context.Context) error, 0, len(targets))
	for _, target := range targets {
		if target == e.self {
			if err := e.store.SaveManifest(m); err != nil {
				e.log.Error("save local manifest failed", zap.String("filename", m.Filename), zap.Error(err))
			} else if e.metrics != nil {
				e.metrics.ManifestsStored.Inc()
			}
			continue
		}
		target := target
		tasks = append(tasks, func(ctx context.Context) error {
			if err := e.rpc.StoreManifest(ctx, target, m); err != nil {
				e.log.Warn("replicate manifest failed", zap.String("peer", target), zap.String("filename", m.Filename), zap.Error(err))
				return err
			}
			return nil
		})
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
	return targets
}

// ReplicateChunk saves a chunk to every one of its k ring successors (the
// chunk hash is itself the routing key for per-chunk placement, spec.md
// §4.5.1), synchronously when self is a target.
func (e *Engine) ReplicateChunk(ctx context.Context, hash string, data []byte) []string {
	targets := e.membership.Ring().Successors(hash, e.replicationFactor)

	tasks := make([]func(context.Context) error, 0, len(targets))
	for _, target := range targets {
		if target == e.self {
			if err := e.store.SaveChunk(hash, data); err != nil {
				e.log.Error("save local chunk failed", zap.String("hash", hash), zap.Error(err))
			} else if e.metrics != nil {
				e.metrics.ChunksStored.Inc()
				e.metrics.ChunkBytes.Add(float64(len(data)))
			}
			continue
		}
		target := target
		tasks = append(tasks, func(ctx context.Context) error {
			if _, err := e.rpc.StoreChunk(ctx, target, data); err != nil {
				e.log.Warn("replicate chunk failed", zap.String("peer", target), zap.String("hash", hash), zap.Error(err))
				return err
			}
			return nil
		})
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
	return targets
}

// AntiEntropyOnce runs one anti-entropy pass: for every manifest this peer
// holds, if it is currently primary (by the routing key, not the storage
// key), check each replica's existence and re-send anything missing.
func (e *Engine) AntiEntropyOnce(ctx context.Context) error {
	manifests, err := e.store.ListLocalManifests()
	if err != nil {
		return fmt.Errorf("anti-entropy: list local manifests: %w", err)
	}

	tasks := make([]func(context.Context) error, 0, len(manifests))
	for _, m := range manifests {
		m := m
		tasks = append(tasks, func(ctx context.Context) error {
			e.repairOne(ctx, m)
			return nil
		})
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
	return nil
}

func (e *Engine) repairOne(ctx context.Context, m store.Manifest) {
	routingKey := RoutingKey(m)
	targets := e.membership.Ring().Successors(routingKey, e.replicationFactor)
	if len(targets) == 0 || targets[0] != e.self {
		// Not primary for this manifest under the current ring view.
		return
	}

	storageHash := store.ManifestHash(m.Filename)
	chunkHashes := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		chunkHashes[i] = c.Hash
	}

	present := 1 // self holds a copy
	for _, target := range targets[1:] {
		resp, err := e.rpc.CheckExistence(ctx, target, store.ExistenceRequest{
			ManifestHashes: []string{storageHash},
			ChunkHashes:    chunkHashes,
		})
		if err != nil {
			e.log.Warn("anti-entropy check_existence failed", zap.String("peer", target), zap.Error(err))
			continue
		}

		healthy := true
		if len(resp.MissingManifests) > 0 {
			healthy = false
			if err := e.rpc.StoreManifest(ctx, target, m); err != nil {
				e.log.Warn("anti-entropy manifest repair failed", zap.String("peer", target), zap.String("filename", m.Filename), zap.Error(err))
			} else if e.metrics != nil {
				e.metrics.AntiEntropyRepairs.Inc()
			}
		}
		for _, missingHash := range resp.MissingChunks {
			healthy = false
			data, err := e.store.LoadChunk(missingHash)
			if err != nil {
				continue // this peer doesn't have it either; another replica may.
			}
			if _, err := e.rpc.StoreChunk(ctx, target, data); err != nil {
				e.log.Warn("anti-entropy chunk repair failed", zap.String("peer", target), zap.String("hash", missingHash), zap.Error(err))
			} else if e.metrics != nil {
				e.metrics.AntiEntropyRepairs.Inc()
			}
		}
		if healthy {
			present++
		}
	}

	health := Classify(present, e.replicationFactor)
	e.log.Info("anti-entropy checked manifest",
		zap.String("filename", m.Filename),
		zap.Int("present", present),
		zap.Int("k", e.replicationFactor),
		zap.String("health", health),
	)
}

// Reconcile applies last-writer-wins across a set of search results that
// may contain multiple hosts for the same filename with diverging
// updated_at values. It triggers asynchronous read-repair against stale
// holders and returns immediately — repair is fire-and-forget, matching
// spec.md §4.4's "Losing replicas are asynchronously overwritten."
func (e *Engine) Reconcile(ctx context.Context, results []wire.SearchResult) {
	winners := make(map[string]wire.SearchResult)
	for _, r := range results {
		w, ok := winners[r.Filename]
		if !ok || r.UpdatedAt > w.UpdatedAt {
			winners[r.Filename] = r
		}
	}

	for _, r := range results {
		winner := winners[r.Filename]
		if r.Host == winner.Host || r.UpdatedAt >= winner.UpdatedAt {
			continue
		}
		staleHost, winningManifest := r.Host, winner.Manifest
		repairCtx := context.WithoutCancel(ctx)
		go func() {
			if err := e.rpc.StoreManifest(repairCtx, staleHost, winningManifest); err != nil {
				e.log.Warn("read-repair failed", zap.String("peer", staleHost), zap.String("filename", winningManifest.Filename), zap.Error(err))
				return
			}
			if e.metrics != nil {
				e.metrics.AntiEntropyRepairs.Inc()
			}
			e.log.Info("read-repair applied", zap.String("peer", staleHost), zap.String("filename", winningManifest.Filename))
		}()
	}
}
