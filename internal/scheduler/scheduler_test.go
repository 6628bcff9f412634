package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/filemesh/node/internal/config"
	"github.com/filemesh/node/internal/peer"
)

func newTestPeer(t *testing.T) *peer.Peer {
	t.Helper()
	cfg := config.Default()
	cfg.SelfID = "peer-a"
	cfg.DataDir = t.TempDir()
	cfg.ChunkSize = 16
	cfg.HeartbeatInterval = 1
	cfg.RingRefreshInterval = 1
	cfg.FailureTimeout = 1

	p, err := peer.New(cfg, nil)
	if err != nil {
		t.Fatalf("peer.New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestStartWithNoBootstrapReturnsImmediately(t *testing.T) {
	p := newTestPeer(t)
	s := New(p, nil)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return promptly for a peer with no bootstrap peers")
	}

	s.Stop(context.Background())
}

func TestStopDrainsTicksAndRunsGracefulLeave(t *testing.T) {
	p := newTestPeer(t)
	s := New(p, nil)
	s.Start(context.Background())

	// Let the gossip and failure-detector ticks (configured at 1s above) fire
	// at least once; anti-entropy's 20-40s jittered tick does not fire here.
	time.Sleep(1200 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain ticks within the timeout")
	}
}

func TestJitteredAntiEntropyIntervalWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := jitteredAntiEntropyInterval()
		if d < 20*time.Second || d > 40*time.Second {
			t.Fatalf("jitteredAntiEntropyInterval = %v, want in [20s, 40s]", d)
		}
	}
}

func TestGossipOnceNoopWithNoKnownPeers(t *testing.T) {
	p := newTestPeer(t)
	s := New(p, nil)
	// Should not panic or block when there are no known peers to gossip with.
	s.gossipOnce(context.Background())
}

func TestFailureDetectorOnceNoopWithNoSuspects(t *testing.T) {
	p := newTestPeer(t)
	s := New(p, nil)
	s.failureDetectorOnce(context.Background())
}
