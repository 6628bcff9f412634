package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()

	if cfg.HeartbeatInterval != 5 {
		t.Errorf("HeartbeatInterval = %d, want 5", cfg.HeartbeatInterval)
	}
	if cfg.FailureTimeout != 15 {
		t.Errorf("FailureTimeout = %d, want 15", cfg.FailureTimeout)
	}
	if cfg.RingRefreshInterval != 10 {
		t.Errorf("RingRefreshInterval = %d, want 10", cfg.RingRefreshInterval)
	}
	if cfg.Replicas != 100 {
		t.Errorf("Replicas = %d, want 100", cfg.Replicas)
	}
	if cfg.ReplicationFactor != 3 {
		t.Errorf("ReplicationFactor = %d, want 3", cfg.ReplicationFactor)
	}
	if cfg.ChunkSize != 1<<20 {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, 1<<20)
	}
	if cfg.NIndexShards != 3 {
		t.Errorf("NIndexShards = %d, want 3", cfg.NIndexShards)
	}
	if cfg.Mode != ModeNaive {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeNaive)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer.json")
	body := `{"self_id":"peer-a","mode":"METADATA","replicas":200,"known_peers":["peer-b","peer-c"]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SelfID != "peer-a" {
		t.Errorf("SelfID = %q, want peer-a", cfg.SelfID)
	}
	if cfg.Mode != ModeMetadata {
		t.Errorf("Mode = %q, want METADATA", cfg.Mode)
	}
	if cfg.Replicas != 200 {
		t.Errorf("Replicas = %d, want 200 (overlay should replace default)", cfg.Replicas)
	}
	// Fields absent from the file keep Default()'s values.
	if cfg.ReplicationFactor != 3 {
		t.Errorf("ReplicationFactor = %d, want default 3", cfg.ReplicationFactor)
	}
	if len(cfg.KnownPeers) != 2 {
		t.Errorf("KnownPeers = %v, want 2 entries", cfg.KnownPeers)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestValidateRejectsMissingSelfID(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "./data"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing self_id, got nil")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.SelfID = "peer-a"
	cfg.Mode = "BOGUS"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid mode, got nil")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Default()
	cfg.SelfID = "peer-a"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on a filled-in default config: %v", err)
	}
}
