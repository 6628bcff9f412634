// Package scheduler runs the four independent background ticks spec.md
// §4.7 names: gossip, failure-detector, anti-entropy, and the startup
// join/rejoin retry. Generalizes the teacher's
// DistributedStorage.StartMonitoring/monitorLoop single-ticker idiom
// (pkg/meshstorage/distributed.go) into one goroutine per tick plus a
// shared WaitGroup, the way pkg/dht/node.go's expireRoutine runs alongside
// the rest of a Node's background work. Each tick is independent: a slow
// or failing gossip round never blocks the failure detector or
// anti-entropy, matching §5's "none may block another."
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/fanout"
	"github.com/filemesh/node/internal/peer"
)

// Scheduler supervises one Peer's background ticks.
type Scheduler struct {
	peer *peer.Peer
	log  *zap.Logger

	stop   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// New creates a Scheduler bound to p. Start must be called to launch the
// ticks; it does nothing on construction.
func New(p *peer.Peer, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		peer: p,
		log:  log,
		stop: make(chan struct{}),
	}
}

// Start attempts the startup join/rejoin handshake, then launches the
// three periodic ticks as independent goroutines. Returns once the join
// attempt completes (successfully or exhausted); the ticks keep running
// until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.joinWithRetry(ctx)

	s.wg.Add(3)
	go s.gossipLoop(ctx)
	go s.failureDetectorLoop(ctx)
	go s.antiEntropyLoop(ctx)
}

// Stop signals every tick to exit and waits for them to drain. Per spec.md
// §4.7's clean-shutdown requirement, it then runs the graceful-leave
// routine exactly once before returning.
func (s *Scheduler) Stop(ctx context.Context) {
	s.closed.Do(func() { close(s.stop) })
	s.wg.Wait()

	res, err := s.peer.Leave(ctx)
	if err != nil {
		s.log.Warn("graceful leave failed", zap.Error(err))
		return
	}
	s.log.Info("graceful leave complete", zap.Int("manifests_moved", res.ManifestsMoved))
}

// joinWithRetry retries Peer.Join up to 6 times, 5s apart, per spec.md
// §4.7's documented default. A config with no bootstrap peers returns
// immediately: Join is a no-op for a lone seed node.
func (s *Scheduler) joinWithRetry(ctx context.Context) {
	const attempts = 6
	const delay = 5 * time.Second

	for i := 1; i <= attempts; i++ {
		if err := s.peer.Join(ctx); err == nil {
			return
		} else if i == attempts {
			s.log.Warn("join/rejoin exhausted retries", zap.Int("attempts", attempts), zap.Error(err))
			return
		} else {
			s.log.Warn("join attempt failed, retrying", zap.Int("attempt", i), zap.Error(err))
		}

		select {
		case <-time.After(delay):
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// gossipLoop periodically pushes this node's known-peers snapshot (self
// included) to every known peer and touches each peer that acknowledges it,
// the ring-convergence mechanism spec.md §4.3 describes. The receiving peer
// merges the snapshot; nothing is read back from the reply.
func (s *Scheduler) gossipLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.peer.Cfg.RingRefreshIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.gossipOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) gossipOnce(ctx context.Context) {
	peers := s.peer.Mem.KnownPeers()
	if len(peers) == 0 {
		return
	}
	snapshot := s.peer.Mem.Snapshot()

	tasks := make([]func(context.Context) error, len(peers))
	for i, addr := range peers {
		addr := addr
		tasks[i] = func(ctx context.Context) error {
			if err := s.peer.RPC.UpdatePeers(ctx, addr, snapshot); err != nil {
				return err
			}
			s.peer.Mem.Touch(addr)
			return nil
		}
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
	s.peer.Metrics.GossipTicks.Inc()
	s.peer.Metrics.PeersKnown.Set(float64(len(s.peer.Mem.KnownPeers())))
}

// failureDetectorLoop pings every peer whose last-seen timestamp has aged
// past the configured failure timeout and removes it if the ping fails,
// the suspicion-then-eviction policy spec.md §4.3 describes.
func (s *Scheduler) failureDetectorLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.peer.Cfg.HeartbeatIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.failureDetectorOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) failureDetectorOnce(ctx context.Context) {
	suspects := s.peer.Mem.DeadPeers(time.Now())
	if len(suspects) == 0 {
		return
	}

	tasks := make([]func(context.Context) error, len(suspects))
	for i, addr := range suspects {
		addr := addr
		tasks[i] = func(ctx context.Context) error {
			if err := s.peer.RPC.Ping(ctx, addr); err != nil {
				s.peer.Mem.Remove(addr)
				s.peer.Metrics.PeersDead.Inc()
				s.log.Info("peer declared dead", zap.String("peer", addr), zap.Error(err))
				return err
			}
			s.peer.Mem.Touch(addr)
			return nil
		}
	}
	fanout.Run(ctx, fanout.DefaultLimit, tasks)
	s.peer.Metrics.FailureDetectorTicks.Inc()
}

// antiEntropyLoop runs AntiEntropyOnce on a jittered 20-40s interval
// (spec.md §4.7), re-rolling the jitter after every tick so the interval
// doesn't settle into lockstep with peers that started at the same time.
func (s *Scheduler) antiEntropyLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(jitteredAntiEntropyInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if err := s.peer.Repl.AntiEntropyOnce(ctx); err != nil {
				s.log.Warn("anti-entropy pass failed", zap.Error(err))
			} else {
				s.peer.Metrics.AntiEntropyTicks.Inc()
			}
			timer.Reset(jitteredAntiEntropyInterval())
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func jitteredAntiEntropyInterval() time.Duration {
	const minSeconds, maxSeconds = 20, 40
	return time.Duration(minSeconds+rand.Intn(maxSeconds-minSeconds+1)) * time.Second
}
