// Package config loads the peer's runtime configuration: a flat, JSON-tagged
// struct populated from an optional JSON file and overridden by flags, the
// way the teacher's api.Config/DefaultConfig pair works, generalized here to
// cover the whole peer process rather than just its HTTP server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Mode selects one of the three placement/search strategies.
type Mode string

const (
	ModeNaive    Mode = "NAIVE"
	ModeMetadata Mode = "METADATA"
	ModeSemantic Mode = "SEMANTIC"
)

// Config holds every option spec.md §6 names. Field names are chosen to
// match the operation vocabulary directly; JSON tags use the spec's
// snake_case so a config file can be checked into source control unchanged.
type Config struct {
	SelfID     string   `json:"self_id"`
	KnownPeers []string `json:"known_peers"`
	DataDir    string   `json:"data_dir"`
	Mode       Mode     `json:"mode"`

	HeartbeatInterval   int `json:"heartbeat_interval"`
	FailureTimeout      int `json:"failure_timeout"`
	RingRefreshInterval int `json:"ring_refresh_interval"`

	Replicas          int `json:"replicas"`
	ReplicationFactor int `json:"replication_factor"`
	ChunkSize         int `json:"chunk_size"`
	NIndexShards      int `json:"n_index_shards"`

	// ListenAddr is the HTTP request surface's bind address; not part of
	// spec.md's vocabulary but required to actually boot a process.
	ListenAddr string `json:"listen_addr"`
}

// Default returns the spec's documented defaults. Callers overlay a loaded
// file and/or flags on top of this.
func Default() Config {
	return Config{
		Mode:                ModeNaive,
		HeartbeatInterval:   5,
		FailureTimeout:      15,
		RingRefreshInterval: 10,
		Replicas:            100,
		ReplicationFactor:   3,
		ChunkSize:           1 << 20,
		NIndexShards:        3,
		DataDir:             "./mesh-data",
		ListenAddr:          ":8080",
	}
}

// Load reads a JSON config file and overlays it on top of Default(). A
// missing path is not an error — callers that only use flags pass "".
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configs the peer cannot safely boot with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SelfID) == "" {
		return fmt.Errorf("self_id is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Mode {
	case ModeNaive, ModeMetadata, ModeSemantic:
	default:
		return fmt.Errorf("mode must be one of NAIVE, METADATA, SEMANTIC, got %q", c.Mode)
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication_factor must be >= 1")
	}
	if c.Replicas < 1 {
		return fmt.Errorf("replicas must be >= 1")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1")
	}
	if c.NIndexShards < 1 {
		return fmt.Errorf("n_index_shards must be >= 1")
	}
	return nil
}

// FailureTimeoutDuration converts FailureTimeout (seconds) for membership's
// last-seen bookkeeping.
func (c Config) FailureTimeoutDuration() time.Duration {
	return time.Duration(c.FailureTimeout) * time.Second
}

// HeartbeatIntervalDuration converts HeartbeatInterval (seconds) for the
// failure-detector tick.
func (c Config) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// RingRefreshIntervalDuration converts RingRefreshInterval (seconds) for the
// gossip tick.
func (c Config) RingRefreshIntervalDuration() time.Duration {
	return time.Duration(c.RingRefreshInterval) * time.Second
}

// RPCTimeout is the per-request outbound timeout for peer-to-peer calls
// (spec.md §5: "short connect/read timeouts, 2-5s depending on call").
func (c Config) RPCTimeout() time.Duration {
	return 5 * time.Second
}
