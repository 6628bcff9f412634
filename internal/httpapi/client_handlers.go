package httpapi

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/filemesh/node/internal/errs"
	"github.com/filemesh/node/internal/wire"
)

// UploadRequest is the client-facing upload body (spec.md §6:
// "upload(filename, metadata?, simulate_content?)"). Data is an optional
// base64-encoded file body; when absent and SimulateContent is true, the
// handler materializes deterministic dummy content instead of requiring a
// real file upload (SPEC_FULL.md §13's resolution of simulate_content).
type UploadRequest struct {
	Filename        string         `json:"filename" binding:"required"`
	Metadata        map[string]any `json:"metadata"`
	SimulateContent bool           `json:"simulate_content"`
	Data            string         `json:"data"`
	Size            int64          `json:"size"`
}

// handleUpload materializes the upload's content onto disk (real or
// simulated) and hands the resulting path to the active Strategy.
func (s *Server) handleUpload(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		writeError(c, fmt.Errorf("upload: %w", errs.ErrBadRequest))
		return
	}

	content, err := s.materializeContent(req)
	if err != nil {
		writeError(c, err)
		return
	}

	tmpDir, err := os.MkdirTemp("", "filemesh-upload-*")
	if err != nil {
		writeError(c, fmt.Errorf("upload staging: %w", err))
		return
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, req.Filename)
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		writeError(c, fmt.Errorf("stage upload: %w", err))
		return
	}

	resp, err := s.peer.Strat.Upload(c.Request.Context(), localPath, req.Filename, req.Metadata)
	if err != nil {
		s.peer.Metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeError(c, err)
		return
	}
	s.peer.Metrics.UploadsTotal.WithLabelValues("stored").Inc()
	c.JSON(http.StatusOK, resp)
}

// materializeContent resolves the real-or-simulated bytes for an upload.
func (s *Server) materializeContent(req UploadRequest) ([]byte, error) {
	if req.Data != "" {
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, fmt.Errorf("decode data: %w", errs.ErrBadRequest)
		}
		return data, nil
	}
	if !req.SimulateContent {
		return nil, fmt.Errorf("%s has no data and simulate_content is false: %w", req.Filename, errs.ErrBadRequest)
	}
	size := req.Size
	if size <= 0 {
		size = int64(s.peer.Cfg.ChunkSize)
	}
	return simulatedContent(req.Filename, size), nil
}

// simulatedContent generates deterministic pseudo-random bytes for
// simulate_content uploads: seeded by the filename's FNV hash so repeated
// requests for the same filename produce byte-identical content, useful for
// load-testing repeated uploads without shipping real files.
func simulatedContent(filename string, size int64) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filename))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	buf := make([]byte, size)
	_, _ = rng.Read(buf)
	return buf
}

// handleFetch drives Peer.Fetch and maps its three-way result onto
// spec.md §6's fetch response shape.
func (s *Server) handleFetch(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" {
		writeError(c, fmt.Errorf("fetch: %w", errs.ErrBadRequest))
		return
	}

	outDir := filepath.Join(s.peer.Cfg.DataDir, "fetched")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		writeError(c, fmt.Errorf("fetch staging: %w", err))
		return
	}

	res, err := s.peer.Fetch(c.Request.Context(), filename, outDir)
	if err != nil {
		s.peer.Metrics.FetchesTotal.WithLabelValues("failed").Inc()
		writeError(c, err)
		return
	}
	s.peer.Metrics.FetchesTotal.WithLabelValues(res.Status).Inc()
	c.JSON(http.StatusOK, wire.FetchResponse{
		Status:  res.Status,
		Path:    res.Path,
		Missing: res.Missing,
		Reason:  res.Reason,
	})
}

// handleSearch drives the active Strategy's Search.
func (s *Server) handleSearch(c *gin.Context) {
	var query map[string]string
	if err := c.ShouldBindJSON(&query); err != nil {
		writeError(c, fmt.Errorf("search: %w", errs.ErrBadRequest))
		return
	}
	resp, err := s.peer.Strat.Search(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	label := "false"
	if resp.Partial {
		label = "true"
	}
	s.peer.Metrics.SearchesTotal.WithLabelValues(label).Inc()
	c.JSON(http.StatusOK, resp)
}

// handleLeave authorizes only peer_id == self (spec.md §6), then drives
// Peer.Leave.
func (s *Server) handleLeave(c *gin.Context) {
	peerID := c.Param("peer_id")
	if peerID != s.peer.Self {
		writeError(c, fmt.Errorf("leave %s: %w", peerID, errs.ErrUnauthorized))
		return
	}
	res, err := s.peer.Leave(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.LeaveResponse{Status: "completed", ManifestsMoved: res.ManifestsMoved})
}
