// Package ring implements the consistent-hash ring spec.md §4.1 describes:
// MD5 virtual-node positions, binary search with circular wraparound, and a
// distinct-physical-node successor scan for replica placement. Ported
// directly from the reference implementation's ConsistentHashRing.
package ring

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

// Ring is a consistent-hash ring with virtual nodes. All methods are safe
// for concurrent use; structural mutation (Add/Remove) and lookups
// (Get/Successors) share a single RWMutex.
type Ring struct {
	mu sync.RWMutex

	replicas int
	// sortedKeys holds every virtual-node hash in ascending order so
	// lookups can binary search them; keyToNode maps a hash's string form
	// back to the physical node that owns it.
	sortedKeys []*big.Int
	keyToNode  map[string]string
	nodes      map[string]bool // physical nodes currently on the ring
}

// New returns an empty ring configured for the given number of virtual
// positions per physical node (spec.md default: 100).
func New(replicas int) *Ring {
	if replicas < 1 {
		replicas = 1
	}
	return &Ring{
		replicas:  replicas,
		keyToNode: make(map[string]string),
		nodes:     make(map[string]bool),
	}
}

func hashKey(key string) *big.Int {
	sum := md5.Sum([]byte(key))
	return new(big.Int).SetBytes(sum[:])
}

// Add inserts a physical node's virtual positions into the ring. Adding an
// already-present node is a no-op.
func (r *Ring) Add(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nodes[node] {
		return
	}
	r.nodes[node] = true

	for i := 0; i < r.replicas; i++ {
		vkey := fmt.Sprintf("%s#%d", node, i)
		h := hashKey(vkey)
		hs := h.String()
		if _, exists := r.keyToNode[hs]; exists {
			// Astronomically unlikely MD5 collision between two distinct
			// virtual keys; keep the first owner rather than silently
			// dropping a position.
			continue
		}
		r.keyToNode[hs] = node
		r.sortedKeys = append(r.sortedKeys, h)
	}
	sort.Slice(r.sortedKeys, func(i, j int) bool { return r.sortedKeys[i].Cmp(r.sortedKeys[j]) < 0 })
}

// Remove deletes a physical node's virtual positions from the ring.
// Removing an absent node is a no-op.
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.nodes[node] {
		return
	}
	delete(r.nodes, node)

	kept := r.sortedKeys[:0:0]
	for _, h := range r.sortedKeys {
		hs := h.String()
		if r.keyToNode[hs] == node {
			delete(r.keyToNode, hs)
			continue
		}
		kept = append(kept, h)
	}
	r.sortedKeys = kept
}

// Contains reports whether node currently has virtual positions on the ring.
func (r *Ring) Contains(node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[node]
}

// Size returns the number of distinct physical nodes on the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Get returns the physical node responsible for itemKey, or "" if the ring
// is empty.
func (r *Ring) Get(itemKey string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sortedKeys) == 0 {
		return ""
	}
	idx := r.search(hashKey(itemKey))
	return r.keyToNode[r.sortedKeys[idx].String()]
}

// search returns the index of the first virtual position with hash >= h,
// wrapping to 0 when h is past the last position (circular ring).
func (r *Ring) search(h *big.Int) int {
	idx := sort.Search(len(r.sortedKeys), func(i int) bool {
		return r.sortedKeys[i].Cmp(h) >= 0
	})
	if idx == len(r.sortedKeys) {
		idx = 0
	}
	return idx
}

// Successors returns up to count distinct physical nodes starting from the
// node responsible for itemKey and walking the ring clockwise. Used for
// replica placement (spec.md §4.2/§4.4): the first result is the primary,
// the rest are replicas.
func (r *Ring) Successors(itemKey string, count int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.sortedKeys)
	if total == 0 || count <= 0 {
		return nil
	}

	idx := r.search(hashKey(itemKey))
	seen := make(map[string]bool, count)
	result := make([]string, 0, count)

	maxAttempts := total * 2
	for attempts := 0; len(result) < count && attempts < maxAttempts; attempts++ {
		if idx == total {
			idx = 0
		}
		node := r.keyToNode[r.sortedKeys[idx].String()]
		if !seen[node] {
			seen[node] = true
			result = append(result, node)
		}
		idx++
	}
	return result
}

// Nodes returns the set of physical nodes currently on the ring, order
// unspecified.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	return out
}
