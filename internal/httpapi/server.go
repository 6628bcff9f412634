// Package httpapi is the stateless request-surface dispatcher (spec.md
// §4.6, C6): it parses every client-facing and peer-to-peer operation in
// §6, calls exactly one component on the wired Peer, and returns the
// structured body or error the spec names. Generalizes the teacher's
// pkg/meshstorage/api package (gin.Engine, grouped routes, JSON middleware)
// from its Ethereum-address/shard-location vocabulary to filemesh's
// filename/manifest/chunk one.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/filemesh/node/internal/peer"
)

// Server wraps the gin router bound to one Peer.
type Server struct {
	peer       *peer.Peer
	router     *gin.Engine
	httpServer *http.Server
	log        *zap.Logger
}

// Config controls the HTTP transport, independent of the peer's own
// runtime config.
type Config struct {
	Addr            string
	MaxUploadSizeMB int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultConfig matches the teacher's api.DefaultConfig defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxUploadSizeMB: 100,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// NewServer builds the router and binds every route in spec.md §6.
func NewServer(p *peer.Peer, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{peer: p, router: router, log: log}

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(log))
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = int64(cfg.MaxUploadSizeMB) << 20

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	client := s.router.Group("/")
	{
		client.POST("/upload", s.handleUpload)
		client.GET("/fetch/:filename", s.handleFetch)
		client.POST("/search", s.handleSearch)
		client.POST("/leave/:peer_id", s.handleLeave)
	}

	peerGroup := s.router.Group("/peer")
	{
		peerGroup.GET("/ping", s.handlePing)
		peerGroup.POST("/store_chunk", s.handleStoreChunk)
		peerGroup.POST("/store_manifest", s.handleStoreManifest)
		peerGroup.GET("/get_chunk/:hash", s.handleGetChunk)
		peerGroup.GET("/get_manifest/:filename", s.handleGetManifest)
		peerGroup.POST("/update_manifest", s.handleUpdateManifest)
		peerGroup.POST("/search_local", s.handleSearchLocal)
		peerGroup.POST("/join/:peer_id", s.handleJoin)
		peerGroup.POST("/announce/:peer_id", s.handleAnnounce)
		peerGroup.POST("/announce_leave/:peer_id", s.handleAnnounceLeave)
		peerGroup.POST("/update_peers", s.handleUpdatePeers)
		peerGroup.GET("/known_peers", s.handleKnownPeers)
		peerGroup.POST("/index/add", s.handleIndexAdd)
		peerGroup.GET("/index/get/:key", s.handleIndexGet)
		peerGroup.POST("/check_existence", s.handleCheckExistence)
		peerGroup.GET("/stats", s.handleStats)
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metricsHandler := promhttp.HandlerFor(s.peer.Metrics.Registry, promhttp.HandlerOpts{})
	s.router.GET("/metrics", gin.WrapH(metricsHandler))
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully (mirrors the teacher's api.Server.Start).
func (s *Server) Start(ctx context.Context, cfg Config) error {
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router directly, for tests that drive it with
// httptest without going through Start/net.Listen.
func (s *Server) Handler() http.Handler { return s.router }
