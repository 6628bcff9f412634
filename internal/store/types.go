// Package store implements the peer-local object store (spec.md C2): a
// content-addressed directory of chunks, per-file manifests, and secondary
// index shards. All three artifact families live flat under one data
// directory, distinguished purely by filename shape, the way the teacher's
// SQLite-backed storage.go exposed a single Store/Get/List/Delete/Stats
// surface — reimplemented here against a plain filesystem.
package store

// ChunkDescriptor is one entry in a Manifest's ordered chunk list.
type ChunkDescriptor struct {
	Index int      `json:"index"`
	Hash  string   `json:"hash"`
	Peers []string `json:"peers"`
}

// Manifest is the per-file record described in spec.md §3. Identity for
// lookup is SHA-1(filename); this struct is what gets marshaled to
// "<sha1(filename)>.manifest.json".
type Manifest struct {
	Filename     string            `json:"filename"`
	TotalSize    int64             `json:"total_size"`
	ChunkSize    int               `json:"chunk_size"`
	Chunks       []ChunkDescriptor `json:"chunks"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	UpdatedAt    int64             `json:"updated_at"`
	PlacementKey string            `json:"placement_key,omitempty"`
}

// IndexEntry is one row of a Metadata-strategy index shard: spec.md §3's
// {filename, metadata, host} tuple.
type IndexEntry struct {
	Filename string         `json:"filename"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Host     string         `json:"host"`
}

// Stats summarizes the local store's contents, backing the `stats`
// operation (spec.md §6).
type Stats struct {
	ChunksCount    int   `json:"chunks_count"`
	ChunksBytes    int64 `json:"chunks_bytes"`
	ManifestsCount int   `json:"manifests_count"`
	IndexesCount   int   `json:"indexes_count"`
	TotalFiles     int   `json:"total_files"`
}

// ExistenceRequest and ExistenceResponse are the input/output pair for check_existence (spec.md
// §4.2): the caller supplies hashes it's interested in and gets back the
// subset this store does not have.
type ExistenceRequest struct {
	ManifestHashes []string `json:"manifest_hashes"`
	ChunkHashes    []string `json:"chunk_hashes"`
}

type ExistenceResponse struct {
	MissingManifests []string `json:"missing_manifests"`
	MissingChunks    []string `json:"missing_chunks"`
}

// ChunkData pairs a chunk's index and hash with its bytes, the result shape
// of Split and the input shape of SaveChunk callers that also need to know
// chunk order.
type ChunkData struct {
	Index int
	Hash  string
	Bytes []byte
}
