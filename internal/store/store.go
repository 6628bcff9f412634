package store

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/errs"
)

// Store is a peer-local, file-backed object store. A single RWMutex
// serializes manifest/index read-modify-write sequences; chunk writes are
// content-addressed and therefore naturally idempotent, so they don't need
// the same critical section.
type Store struct {
	dir       string
	chunkSize int
	log       *zap.Logger

	mu sync.RWMutex
}

// New opens (creating if absent) a store rooted at dir.
func New(dir string, chunkSize int, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", dir, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, chunkSize: chunkSize, log: log}, nil
}

// Path returns the store's root directory.
func (s *Store) Path() string { return s.dir }

// Close is a no-op for the filesystem backend; kept so callers that defer
// Close() on a storage interface don't need a type switch.
func (s *Store) Close() error { return nil }

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func sha1HexString(s string) string {
	return sha1Hex([]byte(s))
}

func md5HexString(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (s *Store) chunkPath(hash string) string {
	return filepath.Join(s.dir, hash)
}

func (s *Store) manifestPath(filename string) string {
	return filepath.Join(s.dir, sha1HexString(filename)+".manifest.json")
}

func (s *Store) indexPath(shardedKey string) string {
	return filepath.Join(s.dir, "idx_"+md5HexString(shardedKey)+".json")
}

// writeFileAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a concurrent reader never observes a
// partially written manifest or index shard.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Split reads path in ChunkSize pieces, numbering them sequentially from 0
// and hashing each with SHA-1 (spec.md §4.2's split contract).
func (s *Store) Split(path string) ([]ChunkData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var chunks []ChunkData
	buf := make([]byte, s.chunkSize)
	for idx := 0; ; idx++ {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks = append(chunks, ChunkData{Index: idx, Hash: sha1Hex(data), Bytes: data})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
	}
	return chunks, nil
}

// SaveChunk writes a chunk's bytes under its content hash. Content
// addressing makes this idempotent: writing the same hash twice is a no-op
// after the first write succeeds.
func (s *Store) SaveChunk(hash string, data []byte) error {
	path := s.chunkPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("save chunk %s: %w", hash, err)
	}
	return nil
}

// LoadChunk reads a chunk by hash, verifying its SHA-1 against the
// filename. A mismatch is reported as ErrCorruptData per spec.md §7.
func (s *Store) LoadChunk(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.chunkPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("load chunk %s: %w", hash, err)
	}
	if sha1Hex(data) != hash {
		s.log.Error("chunk hash mismatch", zap.String("hash", hash))
		return nil, fmt.Errorf("chunk %s: %w", hash, errs.ErrCorruptData)
	}
	return data, nil
}

// HasChunk reports whether a chunk is present locally, without verifying
// its hash (a cheap existence check, used by check_existence).
func (s *Store) HasChunk(hash string) bool {
	_, err := os.Stat(s.chunkPath(hash))
	return err == nil
}

// SaveManifest atomically replaces the manifest for m.Filename. Spec.md §3
// mandates replace-not-merge semantics with a monotonically non-decreasing
// updated_at (I3); callers (the strategy layer) are responsible for
// deciding whether a given write is newer before calling this.
func (s *Store) SaveManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest %s: %w", m.Filename, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.manifestPath(m.Filename), data); err != nil {
		return fmt.Errorf("save manifest %s: %w", m.Filename, err)
	}
	return nil
}

// LoadManifest returns the manifest for filename, or ErrNotFound.
func (s *Store) LoadManifest(filename string) (Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadManifestLocked(filename)
}

func (s *Store) loadManifestLocked(filename string) (Manifest, error) {
	data, err := os.ReadFile(s.manifestPath(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errs.ErrNotFound
		}
		return Manifest{}, fmt.Errorf("load manifest %s: %w", filename, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest %s: %w", filename, err)
	}
	return m, nil
}

// UpdateManifestWithPeer inserts peer into the peer list of the chunk
// descriptor matching chunkHash, if absent. Returns whether a change was
// made. Grounded on spec.md §4.2's contract; called after every successful
// remote chunk fetch so replica locations stay discoverable (SPEC_FULL.md
// §12/§13).
func (s *Store) UpdateManifestWithPeer(filename, chunkHash, peer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifestLocked(filename)
	if err != nil {
		return false, err
	}

	changed := false
	for i := range m.Chunks {
		if m.Chunks[i].Hash != chunkHash {
			continue
		}
		found := false
		for _, p := range m.Chunks[i].Peers {
			if p == peer {
				found = true
				break
			}
		}
		if !found {
			m.Chunks[i].Peers = append(m.Chunks[i].Peers, peer)
			changed = true
		}
		break
	}
	if !changed {
		return false, nil
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal manifest %s: %w", filename, err)
	}
	if err := writeFileAtomic(s.manifestPath(filename), data); err != nil {
		return false, fmt.Errorf("save manifest %s: %w", filename, err)
	}
	return true, nil
}

// SaveIndexEntry idempotently upserts entry into the shard named by
// shardedKey, deduplicating by Filename (I4).
func (s *Store) SaveIndexEntry(shardedKey string, entry IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndexShardLocked(shardedKey)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.Filename == entry.Filename {
			entries[i] = entry
			return s.writeIndexShardLocked(shardedKey, entries)
		}
	}
	entries = append(entries, entry)
	return s.writeIndexShardLocked(shardedKey, entries)
}

// GetIndexEntries returns every entry in the shard named by shardedKey. An
// absent shard returns an empty slice, not an error: an unpopulated shard
// is a normal state for a fresh key, not a failure.
func (s *Store) GetIndexEntries(shardedKey string) ([]IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readIndexShardLocked(shardedKey)
}

func (s *Store) readIndexShardLocked(shardedKey string) ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath(shardedKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index shard %s: %w", shardedKey, err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal index shard %s: %w", shardedKey, err)
	}
	return entries, nil
}

func (s *Store) writeIndexShardLocked(shardedKey string, entries []IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index shard %s: %w", shardedKey, err)
	}
	if err := writeFileAtomic(s.indexPath(shardedKey), data); err != nil {
		return fmt.Errorf("save index shard %s: %w", shardedKey, err)
	}
	return nil
}

// Rebuild writes a manifest's chunks, in index order, to outPath after
// verifying each chunk's SHA-1. It fails closed: any missing or corrupt
// chunk aborts the rebuild (spec.md §4.2).
func (s *Store) Rebuild(m Manifest, outPath string) (string, error) {
	ordered := make([]ChunkDescriptor, len(m.Chunks))
	copy(ordered, m.Chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", outPath, err)
	}
	defer out.Close()

	for _, desc := range ordered {
		data, err := s.LoadChunk(desc.Hash)
		if err != nil {
			os.Remove(outPath)
			return "", fmt.Errorf("rebuild %s: chunk %d (%s): %w", m.Filename, desc.Index, desc.Hash, err)
		}
		if _, err := out.Write(data); err != nil {
			os.Remove(outPath)
			return "", fmt.Errorf("rebuild %s: write chunk %d: %w", m.Filename, desc.Index, err)
		}
	}
	return outPath, nil
}

// ListLocalManifests returns every manifest currently stored locally.
func (s *Store) ListLocalManifests() ([]Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var manifests []Manifest
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := e.Name()
		if !isManifestFilename(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			s.log.Warn("skipping unreadable manifest file", zap.String("file", name), zap.Error(err))
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func isManifestFilename(name string) bool {
	const suffix = ".manifest.json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return false
	}
	hexPart := name[:len(name)-len(suffix)]
	return len(hexPart) == 40
}

// Stats summarizes the store's contents for the `stats` operation.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("read data dir: %w", err)
	}

	var st Stats
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case isManifestFilename(name):
			st.ManifestsCount++
		case len(name) >= 4 && name[:4] == "idx_":
			st.IndexesCount++
		case len(name) == 40 && isHex(name):
			st.ChunksCount++
			if info, err := e.Info(); err == nil {
				st.ChunksBytes += info.Size()
			}
		}
	}
	st.TotalFiles = st.ChunksCount + st.ManifestsCount + st.IndexesCount
	return st, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// CheckExistence reports which of the requested manifest/chunk hashes this
// store does not have, for anti-entropy and peer-driven repair.
func (s *Store) CheckExistence(req ExistenceRequest) ExistenceResponse {
	var resp ExistenceResponse
	for _, h := range req.ManifestHashes {
		if _, err := os.Stat(filepath.Join(s.dir, h+".manifest.json")); err != nil {
			resp.MissingManifests = append(resp.MissingManifests, h)
		}
	}
	for _, h := range req.ChunkHashes {
		if !s.HasChunk(h) {
			resp.MissingChunks = append(resp.MissingChunks, h)
		}
	}
	return resp
}

// ManifestHash returns the lookup identity for a filename: SHA-1(filename).
func ManifestHash(filename string) string { return sha1HexString(filename) }

// Sha1HexString returns the SHA-1 hex digest of s, exported for callers
// outside this package: internal/strategy's Metadata variant (routing hash
// of a sharded index key), internal/peer (checking fetched chunk bytes), and
// the store_chunk handler (hashing received bytes).
func Sha1HexString(s string) string { return sha1HexString(s) }
