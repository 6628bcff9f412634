package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filemesh/node/internal/errs"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/strategy"
	"github.com/filemesh/node/internal/wire"
)

// handlePing answers the peer-to-peer liveness check.
func (s *Server) handlePing(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// handleStoreChunk accepts raw chunk bytes and recomputes its own SHA-1
// rather than trusting any caller-supplied hash (spec.md §6).
func (s *Server) handleStoreChunk(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, errs.ErrBadRequest)
		return
	}
	hash := store.Sha1HexString(string(data))
	if err := s.peer.Store.SaveChunk(hash, data); err != nil {
		writeError(c, err)
		return
	}
	s.peer.Metrics.ChunksStored.Inc()
	c.JSON(http.StatusOK, wire.StoreChunkResponse{Status: "chunk_saved", ChunkHash: hash})
}

func (s *Server) handleStoreManifest(c *gin.Context) {
	var m store.Manifest
	if err := c.ShouldBindJSON(&m); err != nil {
		writeError(c, errs.ErrBadRequest)
		return
	}
	if m.Filename == "" {
		writeError(c, errs.ErrBadRequest)
		return
	}
	if err := s.peer.Store.SaveManifest(m); err != nil {
		writeError(c, err)
		return
	}
	s.peer.Metrics.ManifestsStored.Inc()
	c.JSON(http.StatusOK, wire.StoreManifestResponse{Status: "manifest_saved", Filename: m.Filename})
}

func (s *Server) handleGetChunk(c *gin.Context) {
	hash := c.Param("hash")
	data, err := s.peer.Store.LoadChunk(hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) handleGetManifest(c *gin.Context) {
	filename := c.Param("filename")
	m, err := s.peer.Store.LoadManifest(filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleUpdateManifest(c *gin.Context) {
	var req wire.UpdateManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.ChunkHash == "" || req.PeerID == "" {
		writeError(c, errs.ErrBadRequest)
		return
	}
	changed, err := s.peer.Store.UpdateManifestWithPeer(req.Filename, req.ChunkHash, req.PeerID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := "no_change"
	if changed {
		status = "updated"
	}
	c.JSON(http.StatusOK, wire.UpdateManifestResponse{Status: status})
}

func (s *Server) handleSearchLocal(c *gin.Context) {
	var query map[string]string
	if err := c.ShouldBindJSON(&query); err != nil {
		writeError(c, errs.ErrBadRequest)
		return
	}
	results, err := strategy.SearchLocal(s.peer.Store, s.peer.Self, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.SearchResponse{Results: results})
}

func (s *Server) handleJoin(c *gin.Context) {
	peerID := c.Param("peer_id")
	if peerID == "" {
		writeError(c, errs.ErrBadRequest)
		return
	}
	s.peer.Mem.Add(peerID)
	c.JSON(http.StatusOK, wire.JoinResponse{Status: "joined", KnownPeers: s.peer.Mem.KnownPeers()})
}

func (s *Server) handleAnnounce(c *gin.Context) {
	peerID := c.Param("peer_id")
	s.peer.Mem.Add(peerID)
	c.JSON(http.StatusOK, wire.AckResponse{Status: "acknowledged"})
}

func (s *Server) handleAnnounceLeave(c *gin.Context) {
	peerID := c.Param("peer_id")
	s.peer.Mem.Remove(peerID)
	c.JSON(http.StatusOK, wire.AckResponse{Status: "acknowledged"})
}

func (s *Server) handleUpdatePeers(c *gin.Context) {
	var peers []string
	if err := c.ShouldBindJSON(&peers); err != nil {
		writeError(c, errs.ErrBadRequest)
		return
	}
	s.peer.Mem.Merge(peers)
	c.JSON(http.StatusOK, wire.AckResponse{Status: "acknowledged"})
}

func (s *Server) handleKnownPeers(c *gin.Context) {
	c.JSON(http.StatusOK, wire.KnownPeersResponse{Peers: s.peer.Mem.KnownPeers()})
}

func (s *Server) handleIndexAdd(c *gin.Context) {
	var req wire.IndexAddRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		writeError(c, errs.ErrBadRequest)
		return
	}
	if err := s.peer.Store.SaveIndexEntry(req.Key, req.Entry); err != nil {
		writeError(c, err)
		return
	}
	s.peer.Metrics.IndexEntriesAdded.Inc()
	c.JSON(http.StatusOK, wire.AckResponse{Status: "acknowledged"})
}

func (s *Server) handleIndexGet(c *gin.Context) {
	key := c.Param("key")
	entries, err := s.peer.Store.GetIndexEntries(key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.IndexGetResponse{Entries: entries})
}

func (s *Server) handleCheckExistence(c *gin.Context) {
	var req store.ExistenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrBadRequest)
		return
	}
	c.JSON(http.StatusOK, s.peer.Store.CheckExistence(req))
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.peer.Store.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.StatsResponse{
		PeerID:  s.peer.Self,
		Mode:    string(s.peer.Mode),
		Storage: stats,
	})
}
