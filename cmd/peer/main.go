// Command peer runs one FileMesh node: the object store, hash ring,
// membership layer, replication engine, an active placement strategy, the
// HTTP request surface, and the background scheduler, all wired together
// and run until an interrupt signal arrives. Generalizes the teacher's
// cmd/mesh-api/main.go flag-parse-then-wire-then-wait-for-signal shape onto
// the filemesh node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/config"
	"github.com/filemesh/node/internal/httpapi"
	"github.com/filemesh/node/internal/logging"
	"github.com/filemesh/node/internal/peer"
	"github.com/filemesh/node/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a JSON config file (spec.md §6 options)")
	selfID := flag.String("self-id", "", "this peer's identity")
	knownPeers := flag.String("known-peers", "", "comma-separated bootstrap peer addresses")
	dataDir := flag.String("data-dir", "", "data directory for chunks, manifests, and the index")
	mode := flag.String("mode", "", "placement/search strategy: NAIVE, METADATA, or SEMANTIC")
	listenAddr := flag.String("listen-addr", "", "HTTP request surface bind address")
	replicationFactor := flag.Int("replication-factor", 0, "number of ring successors each manifest/chunk replicates to")
	replicas := flag.Int("replicas", 0, "virtual nodes per physical peer on the hash ring")
	chunkSize := flag.Int("chunk-size", 0, "chunk size in bytes")
	nIndexShards := flag.Int("n-index-shards", 0, "number of GSI index shards (Metadata strategy)")
	heartbeatInterval := flag.Int("heartbeat-interval", 0, "failure-detector tick interval, seconds")
	failureTimeout := flag.Int("failure-timeout", 0, "last-seen age after which a peer is suspected dead, seconds")
	ringRefreshInterval := flag.Int("ring-refresh-interval", 0, "gossip tick interval, seconds")
	devLog := flag.Bool("dev-log", false, "emit human-readable console logs instead of JSON")
	logLevel := flag.String("log-level", "", "minimum log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	overlayFlags(&cfg, *selfID, *knownPeers, *dataDir, *mode, *listenAddr,
		*replicationFactor, *replicas, *chunkSize, *nIndexShards,
		*heartbeatInterval, *failureTimeout, *ringRefreshInterval)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(logging.Config{Development: *devLog, Level: *logLevel})
	defer log.Sync() //nolint:errcheck

	log.Info("starting filemesh peer",
		zap.String("self_id", cfg.SelfID),
		zap.String("mode", string(cfg.Mode)),
		zap.String("data_dir", cfg.DataDir),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Strings("known_peers", cfg.KnownPeers),
	)

	p, err := peer.New(cfg, log)
	if err != nil {
		return fmt.Errorf("construct peer: %w", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(p, log)
	sched.Start(ctx)

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.ListenAddr
	srv := httpapi.NewServer(p, httpCfg, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start(ctx, httpCfg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			log.Error("http server exited", zap.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sched.Stop(shutdownCtx)

	log.Info("filemesh peer stopped")
	return nil
}

// overlayFlags applies any explicitly-set flag over the loaded config,
// leaving fields untouched when their flag carries its zero value (the
// config file or Default() wins in that case).
func overlayFlags(cfg *config.Config, selfID, knownPeers, dataDir, mode, listenAddr string,
	replicationFactor, replicas, chunkSize, nIndexShards, heartbeatInterval, failureTimeout, ringRefreshInterval int) {
	if selfID != "" {
		cfg.SelfID = selfID
	}
	if knownPeers != "" {
		cfg.KnownPeers = splitAndTrim(knownPeers)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(strings.ToUpper(mode))
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if replicationFactor != 0 {
		cfg.ReplicationFactor = replicationFactor
	}
	if replicas != 0 {
		cfg.Replicas = replicas
	}
	if chunkSize != 0 {
		cfg.ChunkSize = chunkSize
	}
	if nIndexShards != 0 {
		cfg.NIndexShards = nIndexShards
	}
	if heartbeatInterval != 0 {
		cfg.HeartbeatInterval = heartbeatInterval
	}
	if failureTimeout != 0 {
		cfg.FailureTimeout = failureTimeout
	}
	if ringRefreshInterval != 0 {
		cfg.RingRefreshInterval = ringRefreshInterval
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
