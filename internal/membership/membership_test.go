package membership

import (
	"testing"
	"time"

	"github.com/filemesh/node/internal/ring"
)

func newTestMembership(self string, bootstrap []string) *Membership {
	r := ring.New(50)
	return New(self, bootstrap, r, 15*time.Second, nil)
}

func TestAddExcludesSelf(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	if m.Add("peer-a") {
		t.Fatal("Add(self) reported newly added, want false")
	}
	if len(m.KnownPeers()) != 0 {
		t.Fatalf("KnownPeers after Add(self) = %v, want empty", m.KnownPeers())
	}
}

func TestAddInsertsIntoRing(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	m.Add("peer-b")
	if !m.Ring().Contains("peer-b") {
		t.Fatal("expected Add to insert the peer into the ring")
	}
	if !m.Ring().Contains("peer-a") {
		t.Fatal("expected self to be on the ring from construction")
	}
}

func TestRemoveDropsFromAllThreeStructures(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	m.Add("peer-b")
	m.Remove("peer-b")

	if len(m.KnownPeers()) != 0 {
		t.Errorf("KnownPeers after Remove = %v, want empty", m.KnownPeers())
	}
	if m.Ring().Contains("peer-b") {
		t.Error("expected Remove to drop the peer from the ring")
	}
	dead := m.DeadPeers(time.Now().Add(24 * time.Hour))
	for _, p := range dead {
		if p == "peer-b" {
			t.Error("removed peer should not still appear in last_seen")
		}
	}
}

func TestMergeUnionsAndReportsNewPeers(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	m.Add("peer-b")

	added := m.Merge([]string{"peer-b", "peer-c", "peer-a", "peer-d"})
	if len(added) != 2 {
		t.Fatalf("Merge added = %v, want 2 new peers (peer-c, peer-d)", added)
	}

	known := m.KnownPeers()
	if len(known) != 3 {
		t.Fatalf("KnownPeers after merge = %v, want 3 entries", known)
	}
}

func TestDeadPeersRespectsFailureTimeout(t *testing.T) {
	r := ring.New(50)
	m := New("peer-a", nil, r, 15*time.Second, nil)
	m.Add("peer-b")

	if dead := m.DeadPeers(time.Now()); len(dead) != 0 {
		t.Errorf("DeadPeers immediately after Add = %v, want empty", dead)
	}

	future := time.Now().Add(20 * time.Second)
	dead := m.DeadPeers(future)
	if len(dead) != 1 || dead[0] != "peer-b" {
		t.Errorf("DeadPeers after timeout elapsed = %v, want [peer-b]", dead)
	}
}

func TestTouchResetsLastSeen(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	m.Add("peer-b")

	future := time.Now().Add(20 * time.Second)
	if dead := m.DeadPeers(future); len(dead) != 1 {
		t.Fatalf("expected peer-b to be overdue before Touch, got %v", dead)
	}

	m.Touch("peer-b")
	if dead := m.DeadPeers(time.Now()); len(dead) != 0 {
		t.Errorf("DeadPeers right after Touch = %v, want empty", dead)
	}
}

func TestBootstrapPeersIsImmutableSnapshot(t *testing.T) {
	bootstrap := []string{"peer-b", "peer-c"}
	m := newTestMembership("peer-a", bootstrap)

	got := m.BootstrapPeers()
	got[0] = "mutated"

	again := m.BootstrapPeers()
	if again[0] != "peer-b" {
		t.Errorf("BootstrapPeers snapshot was mutated by caller: %v", again)
	}
}

func TestSnapshotIncludesSelf(t *testing.T) {
	m := newTestMembership("peer-a", nil)
	m.Add("peer-b")

	snap := m.Snapshot()
	found := false
	for _, p := range snap {
		if p == "peer-a" {
			found = true
		}
	}
	if !found {
		t.Errorf("Snapshot() = %v, want self included", snap)
	}
}
