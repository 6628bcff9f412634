package replication

import (
	"testing"
	"time"

	"github.com/filemesh/node/internal/membership"
	"github.com/filemesh/node/internal/ring"
	"github.com/filemesh/node/internal/rpcclient"
	"github.com/filemesh/node/internal/store"
	"github.com/filemesh/node/internal/wire"
)

func TestClassifyBuckets(t *testing.T) {
	cases := []struct {
		present, k int
		want       string
	}{
		{3, 3, HealthExcellent},
		{2, 3, HealthGood},
		{1, 3, HealthDegraded},
		{0, 3, HealthCritical},
	}
	for _, c := range cases {
		if got := Classify(c.present, c.k); got != c.want {
			t.Errorf("Classify(%d, %d) = %q, want %q", c.present, c.k, got, c.want)
		}
	}
}

func TestRoutingKeyPrefersPlacementKey(t *testing.T) {
	m := store.Manifest{Filename: "movie.mp4", PlacementKey: "scifi"}
	if got := RoutingKey(m); got != "scifi" {
		t.Errorf("RoutingKey = %q, want scifi (placement key override)", got)
	}
}

func TestRoutingKeyFallsBackToFilename(t *testing.T) {
	m := store.Manifest{Filename: "movie.mp4"}
	if got := RoutingKey(m); got != "movie.mp4" {
		t.Errorf("RoutingKey = %q, want filename fallback", got)
	}
}

func newTestEngine(t *testing.T, self string) (*Engine, *ring.Ring) {
	t.Helper()
	r := ring.New(50)
	mem := membership.New(self, nil, r, 15*time.Second, nil)
	st, err := store.New(t.TempDir(), 1<<20, nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	rpc := rpcclient.New(time.Second, nil)
	return New(self, st, mem, rpc, 3, nil, nil), r
}

func TestReconcilePicksHighestUpdatedAtAsWinner(t *testing.T) {
	e, _ := newTestEngine(t, "peer-a")

	results := []wire.SearchResult{
		{Filename: "a.txt", Host: "peer-b", UpdatedAt: 10, Manifest: store.Manifest{Filename: "a.txt", UpdatedAt: 10}},
		{Filename: "a.txt", Host: "peer-c", UpdatedAt: 20, Manifest: store.Manifest{Filename: "a.txt", UpdatedAt: 20}},
	}
	// Reconcile triggers a detached goroutine to repair peer-b; we only
	// assert it doesn't panic or block synchronously here. Which host gets
	// repaired, and whether the repair is delivered, is not observed.
	e.Reconcile(t.Context(), results)
}

func TestAntiEntropySkipsManifestsWhereSelfIsNotPrimary(t *testing.T) {
	e, r := newTestEngine(t, "peer-a")
	r.Add("peer-b")
	r.Add("peer-c")

	// Find a filename peer-a does NOT own under the current ring.
	var foreign string
	for i := 0; i < 1000; i++ {
		key := string(rune('a' + i%26))
		if r.Get(key) != "peer-a" {
			foreign = key
			break
		}
	}
	if foreign == "" {
		t.Fatal("could not find a key not owned by peer-a in this ring configuration")
	}

	m := store.Manifest{Filename: foreign}
	// repairOne should return without attempting any network call; since
	// there's no listener on these addresses a call would hang/err loudly
	// under -race if it were attempted synchronously without a timeout.
	e.repairOne(t.Context(), m)
}
