// Package membership implements the flat, coordinator-free membership
// layer spec.md §4.3 describes: a known-peers set, a last-seen timestamp
// map, an immutable bootstrap snapshot, and the ring, all guarded by one
// mutex. Network I/O (dialing a peer to join, gossip, ping) lives in
// internal/rpcclient and internal/scheduler; this package only owns the
// structural state those callers mutate.
package membership

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filemesh/node/internal/ring"
)

// Membership tracks the set of peers this node currently believes are
// alive, alongside the ring those peers occupy. All structural mutation
// goes through the exported methods, each of which takes the mutex for the
// shortest span possible: spec.md §4.3 requires network I/O never happen
// while holding it, so callers that need to dial a peer do so outside these
// calls and report the outcome back in with Touch/Remove.
type Membership struct {
	mu sync.Mutex

	self           string
	knownPeers     map[string]bool
	lastSeen       map[string]time.Time
	bootstrapPeers []string
	ring           *ring.Ring

	failureTimeout time.Duration
	log            *zap.Logger
}

// New creates a Membership for self, seeded with bootstrap peers (an
// immutable snapshot kept for cold-restart rejoin attempts) and the shared
// ring instance the rest of the peer also uses for placement.
func New(self string, bootstrap []string, r *ring.Ring, failureTimeout time.Duration, log *zap.Logger) *Membership {
	if log == nil {
		log = zap.NewNop()
	}
	snapshot := make([]string, len(bootstrap))
	copy(snapshot, bootstrap)

	m := &Membership{
		self:           self,
		knownPeers:     make(map[string]bool),
		lastSeen:       make(map[string]time.Time),
		bootstrapPeers: snapshot,
		ring:           r,
		failureTimeout: failureTimeout,
		log:            log,
	}
	r.Add(self)
	return m
}

// Self returns this node's peer identity.
func (m *Membership) Self() string { return m.self }

// BootstrapPeers returns the immutable initial snapshot, used to retry
// joining after a cold restart finds every known peer unreachable.
func (m *Membership) BootstrapPeers() []string {
	out := make([]string, len(m.bootstrapPeers))
	copy(out, m.bootstrapPeers)
	return out
}

// KnownPeers returns a snapshot of the current known-peers set, excluding
// self, order unspecified.
func (m *Membership) KnownPeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.knownPeers))
	for p := range m.knownPeers {
		out = append(out, p)
	}
	return out
}

// Add inserts peer into the known-peers set and the ring, marking it seen
// now. Returns whether peer was newly added (false if already known).
func (m *Membership) Add(peer string) bool {
	if peer == "" || peer == m.self {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(peer)
}

func (m *Membership) addLocked(peer string) bool {
	if m.knownPeers[peer] {
		m.lastSeen[peer] = time.Now()
		return false
	}
	m.knownPeers[peer] = true
	m.lastSeen[peer] = time.Now()
	m.ring.Add(peer)
	m.log.Info("peer added", zap.String("peer", peer))
	return true
}

// Remove deletes peer from the known-peers set, last-seen map, and the
// ring. Used both by the failure detector (dead peer) and graceful leave
// (announced departure).
func (m *Membership) Remove(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(peer)
}

func (m *Membership) removeLocked(peer string) {
	if !m.knownPeers[peer] {
		return
	}
	delete(m.knownPeers, peer)
	delete(m.lastSeen, peer)
	m.ring.Remove(peer)
	m.log.Info("peer removed", zap.String("peer", peer))
}

// Touch updates peer's last-seen timestamp to now, used after a successful
// ping or any other confirmation the peer is alive. A peer not already
// known is added.
func (m *Membership) Touch(peer string) {
	if peer == "" || peer == m.self {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(peer)
}

// Merge takes the set union of peers into the known-peers set (the gossip
// protocol's receive-side behavior). Returns the peers that were newly
// added.
func (m *Membership) Merge(peers []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, p := range peers {
		if p == "" || p == m.self {
			continue
		}
		if m.addLocked(p) {
			added = append(added, p)
		}
	}
	return added
}

// DeadPeers returns known peers whose last-seen timestamp is older than
// the configured failure timeout, as of now. It does not remove them —
// callers (the failure detector tick) decide when to call Remove after
// attempting a ping.
func (m *Membership) DeadPeers(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dead []string
	for p, seen := range m.lastSeen {
		if now.Sub(seen) > m.failureTimeout {
			dead = append(dead, p)
		}
	}
	return dead
}

// Ring exposes the shared ring instance for callers that need to compute
// placement (internal/strategy, internal/replication).
func (m *Membership) Ring() *ring.Ring { return m.ring }

// Snapshot returns the known-peers set plus self, the shape the gossip
// payload sends over the wire. (A join response sends KnownPeers, which
// excludes self.)
func (m *Membership) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.knownPeers)+1)
	out = append(out, m.self)
	for p := range m.knownPeers {
		out = append(out, p)
	}
	return out
}
