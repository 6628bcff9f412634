// Package wire defines the JSON payload shapes shared across the network
// boundary: the request surface (internal/httpapi) and the peer RPC client
// (internal/rpcclient) both speak these types, so neither has to guess the
// other's encoding.
package wire

import "github.com/filemesh/node/internal/store"

// SearchResult is one row of a search/search_local response (spec.md §6).
type SearchResult struct {
	Filename  string         `json:"filename"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Host      string         `json:"host"`
	UpdatedAt int64          `json:"updated_at"`
	Manifest  store.Manifest `json:"manifest"`
}

// SearchResponse is the body returned by both search and search_local.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Partial bool           `json:"partial"`
}

// UploadResponse is the body returned by upload.
type UploadResponse struct {
	Status   string         `json:"status"`
	Manifest store.Manifest `json:"manifest"`
	Replicas []string       `json:"replicas"`
}

// FetchResponse is the body returned by fetch. Exactly one of Path or
// Missing/Reason is populated, selected by Status.
type FetchResponse struct {
	Status  string   `json:"status"`
	Path    string   `json:"path,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// LeaveResponse is the body returned by leave.
type LeaveResponse struct {
	Status         string `json:"status"`
	ManifestsMoved int    `json:"manifests_moved"`
}

// JoinResponse is the body returned by join.
type JoinResponse struct {
	Status     string   `json:"status"`
	KnownPeers []string `json:"known_peers"`
}

// StoreChunkResponse is the body returned by store_chunk.
type StoreChunkResponse struct {
	Status    string `json:"status"`
	ChunkHash string `json:"chunk_hash"`
}

// StoreManifestResponse is the body returned by store_manifest.
type StoreManifestResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// UpdateManifestRequest is the body sent to update_manifest.
type UpdateManifestRequest struct {
	Filename  string `json:"filename"`
	ChunkHash string `json:"chunk_hash"`
	PeerID    string `json:"peer_id"`
}

// UpdateManifestResponse is the body returned by update_manifest.
type UpdateManifestResponse struct {
	Status string `json:"status"` // "updated" | "no_change"
}

// IndexAddRequest is the body sent to index/add.
type IndexAddRequest struct {
	Key   string           `json:"key"`
	Entry store.IndexEntry `json:"entry"`
}

// IndexGetResponse is the body returned by index/get.
type IndexGetResponse struct {
	Entries []store.IndexEntry `json:"entries"`
}

// KnownPeersResponse is the body returned by known_peers.
type KnownPeersResponse struct {
	Peers []string `json:"peers"`
}

// AckResponse is the generic acknowledgment body for announce,
// announce_leave, and update_peers.
type AckResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the body returned by stats.
type StatsResponse struct {
	PeerID  string      `json:"peer_id"`
	Mode    string      `json:"mode"`
	Storage store.Stats `json:"storage"`
}

// ErrorResponse is the structured error body every failing operation
// returns (spec.md §7's "external-facing operations always return a
// structured body").
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
