// Package rpcclient is the outbound half of the peer-to-peer request
// surface: every call a peer makes to another peer (ping, store_chunk,
// store_manifest, search_local, join, ...) goes through this client.
// Generalizes the teacher's pkg/dht request/reply idiom (a pending-request
// map keyed by request ID over a raw net.Listener) onto plain HTTP, since
// the client-facing surface already needs an HTTP server and one transport
// for both keeps the whole request surface uniform.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/errs"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

// Client dials peer-to-peer operations over HTTP. Stateless beyond the
// underlying http.Client's connection pool; safe for concurrent use.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// New creates a Client with the given per-request timeout. The same timeout
// applies to every operation made through the Client; there is no per-call
// override, so chunk transfers get no longer limit than a ping.
func New(timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func addrURL(addr, path string) string {
	return fmt.Sprintf("http://%s%s", addr, path)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, errs.ErrPeerUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// Ping checks peer liveness.
func (c *Client) Ping(ctx context.Context, addr string) error {
	return c.doJSON(ctx, http.MethodGet, addrURL(addr, "/peer/ping"), nil, nil)
}

// StoreChunk ships a chunk's bytes to addr; the server recomputes and
// trusts its own SHA-1 rather than accepting a caller-supplied hash.
func (c *Client) StoreChunk(ctx context.Context, addr string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addrURL(addr, "/peer/store_chunk"), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("store_chunk %s: %w", addr, errs.ErrPeerUnreachable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("store_chunk %s: status %d: %w", addr, resp.StatusCode, errs.ErrTransferFailed)
	}
	var out wire.StoreChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode store_chunk response: %w", err)
	}
	return out.ChunkHash, nil
}

// StoreManifest ships a manifest to addr.
func (c *Client) StoreManifest(ctx context.Context, addr string, m store.Manifest) error {
	var out wire.StoreManifestResponse
	if err := c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/store_manifest"), m, &out); err != nil {
		return fmt.Errorf("store_manifest %s: %w", addr, err)
	}
	return nil
}

// GetChunk fetches a chunk's bytes from addr, or ErrNotFound.
func (c *Client) GetChunk(ctx context.Context, addr, hash string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL(addr, "/peer/get_chunk/"+hash), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get_chunk %s: %w", addr, errs.ErrPeerUnreachable)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get_chunk %s: status %d", addr, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chunk body: %w", err)
	}
	return data, nil
}

// GetManifest fetches a manifest by filename from addr, or ErrNotFound.
func (c *Client) GetManifest(ctx context.Context, addr, filename string) (store.Manifest, error) {
	var m store.Manifest
	err := c.doJSON(ctx, http.MethodGet, addrURL(addr, "/peer/get_manifest/"+filename), nil, &m)
	return m, err
}

// UpdateManifest asks addr to insert peer into chunkHash's peer list for
// filename. Returns whether the remote store changed.
func (c *Client) UpdateManifest(ctx context.Context, addr, filename, chunkHash, peerID string) (bool, error) {
	req := wire.UpdateManifestRequest{Filename: filename, ChunkHash: chunkHash, PeerID: peerID}
	var out wire.UpdateManifestResponse
	if err := c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/update_manifest"), req, &out); err != nil {
		return false, fmt.Errorf("update_manifest %s: %w", addr, err)
	}
	return out.Status == "updated", nil
}

// SearchLocal queries addr's local store only (spec.md §4.5.1's match
// rule), used by Naive's fanout and Semantic's routed search.
func (c *Client) SearchLocal(ctx context.Context, addr string, query map[string]string) ([]wire.SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	var out wire.SearchResponse
	url := addrURL(addr, "/peer/search_local")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search_local %s: %w", addr, errs.ErrPeerUnreachable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search_local %s: status %d", addr, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search_local response: %w", err)
	}
	return out.Results, nil
}

// Join asks addr to admit this peer, returning addr's known-peers view.
func (c *Client) Join(ctx context.Context, addr, selfID string) ([]string, error) {
	var out wire.JoinResponse
	url := addrURL(addr, "/peer/join/"+selfID)
	if err := c.doJSON(ctx, http.MethodPost, url, nil, &out); err != nil {
		return nil, fmt.Errorf("join %s: %w", addr, err)
	}
	return out.KnownPeers, nil
}

// Announce tells addr that peerID has joined the cluster.
func (c *Client) Announce(ctx context.Context, addr, peerID string) error {
	return c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/announce/"+peerID), nil, nil)
}

// AnnounceLeave tells addr that peerID has left the cluster.
func (c *Client) AnnounceLeave(ctx context.Context, addr, peerID string) error {
	return c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/announce_leave/"+peerID), nil, nil)
}

// UpdatePeers gossips this node's known-peers list to addr.
func (c *Client) UpdatePeers(ctx context.Context, addr string, peers []string) error {
	return c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/update_peers"), peers, nil)
}

// KnownPeers fetches addr's known-peers list.
func (c *Client) KnownPeers(ctx context.Context, addr string) ([]string, error) {
	var out wire.KnownPeersResponse
	if err := c.doJSON(ctx, http.MethodGet, addrURL(addr, "/peer/known_peers"), nil, &out); err != nil {
		return nil, fmt.Errorf("known_peers %s: %w", addr, err)
	}
	return out.Peers, nil
}

// IndexAdd appends entry to the index shard named by key on addr.
func (c *Client) IndexAdd(ctx context.Context, addr, key string, entry store.IndexEntry) error {
	req := wire.IndexAddRequest{Key: key, Entry: entry}
	return c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/index/add"), req, nil)
}

// IndexGet fetches the index shard named by key from addr.
func (c *Client) IndexGet(ctx context.Context, addr, key string) ([]store.IndexEntry, error) {
	var out wire.IndexGetResponse
	url := addrURL(addr, "/peer/index/get/"+key)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, fmt.Errorf("index/get %s: %w", addr, err)
	}
	return out.Entries, nil
}

// CheckExistence asks addr which of the given hashes it's missing.
func (c *Client) CheckExistence(ctx context.Context, addr string, req store.ExistenceRequest) (store.ExistenceResponse, error) {
	var out store.ExistenceResponse
	if err := c.doJSON(ctx, http.MethodPost, addrURL(addr, "/peer/check_existence"), req, &out); err != nil {
		return store.ExistenceResponse{}, fmt.Errorf("check_existence %s: %w", addr, err)
	}
	return out, nil
}

// Stats fetches addr's storage stats.
func (c *Client) Stats(ctx context.Context, addr string) (wire.StatsResponse, error) {
	var out wire.StatsResponse
	if err := c.doJSON(ctx, http.MethodGet, addrURL(addr, "/peer/stats"), nil, &out); err != nil {
		return wire.StatsResponse{}, fmt.Errorf("stats %s: %w", addr, err)
	}
	return out, nil
}
