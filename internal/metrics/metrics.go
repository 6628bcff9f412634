// Package metrics exposes the Prometheus collectors backing the request
// surface's `stats` operation and the background scheduler's tick counters.
// Mirrors the metrics-sink shape in Voskan-arena-cache's pkg/metrics.go:
// a small set of labeled counters/gauges registered against a private
// registry, with plain field updates on the hot path (no sampling).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector a peer updates during its lifetime.
type Metrics struct {
	Registry *prometheus.Registry

	ChunksStored      prometheus.Counter
	ManifestsStored   prometheus.Counter
	IndexEntriesAdded prometheus.Counter
	ChunkBytes        prometheus.Gauge

	UploadsTotal  *prometheus.CounterVec // label: status ("stored", "failed")
	FetchesTotal  *prometheus.CounterVec // label: status ("fetched", "partial", "failed")
	SearchesTotal *prometheus.CounterVec // label: partial ("true", "false")

	GossipTicks          prometheus.Counter
	FailureDetectorTicks prometheus.Counter
	AntiEntropyTicks     prometheus.Counter
	AntiEntropyRepairs   prometheus.Counter
	PeersKnown           prometheus.Gauge
	PeersDead            prometheus.Counter
}

// New creates and registers every collector against a fresh registry. A
// fresh registry per peer process keeps metric registration idempotent for
// tests that construct multiple peers in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ChunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "chunks_stored_total",
			Help:      "Number of chunks written to the local object store.",
		}),
		ManifestsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "manifests_stored_total",
			Help:      "Number of manifests written to the local object store.",
		}),
		IndexEntriesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "index_entries_added_total",
			Help:      "Number of index shard entries appended (Metadata strategy only).",
		}),
		ChunkBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filemesh",
			Name:      "chunk_bytes",
			Help:      "Aggregate bytes of chunks held in the local object store.",
		}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "uploads_total",
			Help:      "Upload operations by outcome.",
		}, []string{"status"}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "fetches_total",
			Help:      "Fetch operations by outcome.",
		}, []string{"status"}),
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "searches_total",
			Help:      "Search operations by whether the result was partial.",
		}, []string{"partial"}),
		GossipTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "gossip_ticks_total",
			Help:      "Number of gossip rounds run.",
		}),
		FailureDetectorTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "failure_detector_ticks_total",
			Help:      "Number of failure-detector rounds run.",
		}),
		AntiEntropyTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "anti_entropy_ticks_total",
			Help:      "Number of anti-entropy rounds run.",
		}),
		AntiEntropyRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "anti_entropy_repairs_total",
			Help:      "Number of replicas restored by anti-entropy.",
		}),
		PeersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filemesh",
			Name:      "peers_known",
			Help:      "Current size of the known-peers set.",
		}),
		PeersDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filemesh",
			Name:      "peers_declared_dead_total",
			Help:      "Number of peers declared dead by the failure detector.",
		}),
	}

	reg.MustRegister(
		m.ChunksStored, m.ManifestsStored, m.IndexEntriesAdded, m.ChunkBytes,
		m.UploadsTotal, m.FetchesTotal, m.SearchesTotal,
		m.GossipTicks, m.FailureDetectorTicks, m.AntiEntropyTicks, m.AntiEntropyRepairs,
		m.PeersKnown, m.PeersDead,
	)

	return m
}
