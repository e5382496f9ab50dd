// Package mocknet is an in-memory overlay simulator used by tests and the
// demo command in place of a real transport: a NodeStore, RumorMill, and
// Router all backed by the same in-process registry of simulated peers,
// with configurable per-send latency and drop rate.
package mocknet

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	searchrunner "github.com/overlaymesh/searchrunner"
)

// peer is one simulated overlay node: its advertised address plus whatever
// it would answer a find-node query with.
type peer struct {
	addr      searchrunner.Address
	neighbors []searchrunner.Address
}

// Network is a shared registry of simulated peers. A Network's NodeStore,
// RumorMill, and Router views all close over the same registry, so queries
// sent through the Router can resolve against nodes added through AddPeer.
type Network struct {
	mu      sync.RWMutex
	rng     *rand.Rand
	latency time.Duration
	dropPct int // 0..100 chance a send is silently dropped

	peers     map[[searchrunner.KeySize]byte]*peer
	byPath    map[uint64][searchrunner.KeySize]byte
	bootstrap map[[searchrunner.KeySize]byte]bool
	rumors    []searchrunner.Address
	queried   map[uint64]int // path -> times asked, test introspection only
}

// NewNetwork returns an empty simulated overlay. seed makes drop decisions
// reproducible across runs.
func NewNetwork(seed int64, latency time.Duration, dropPct int) *Network {
	return &Network{
		rng:       rand.New(rand.NewSource(seed)),
		latency:   latency,
		dropPct:   dropPct,
		peers:     make(map[[searchrunner.KeySize]byte]*peer),
		byPath:    make(map[uint64][searchrunner.KeySize]byte),
		bootstrap: make(map[[searchrunner.KeySize]byte]bool),
		queried:   make(map[uint64]int),
	}
}

// AddPeer registers a simulated node at addr, answering find-node queries
// with neighbors. It is not, by itself, locally known to anyone else's
// NodeStore — see Bootstrap for that — so a freshly added peer is only
// reachable once some other node's reply mentions it, the same way a real
// overlay node becomes reachable once a search discovers it.
func (n *Network) AddPeer(addr searchrunner.Address, neighbors []searchrunner.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[addr.Key] = &peer{addr: addr, neighbors: neighbors}
	n.byPath[addr.Path] = addr.Key
}

// Bootstrap marks addr as locally known from the start, so NodeStore.Closest
// can return it as a seed before any search has discovered it.
func (n *Network) Bootstrap(addr searchrunner.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bootstrap[addr.Key] = true
}

// Seed returns up to k peers' addresses, arbitrarily ordered — good enough
// to stand in for a NodeStore's Closest when the caller only needs "any k
// known nodes". Unlike NodeStore.Closest it is not limited to bootstrapped
// peers.
func (n *Network) Seed(k int) []searchrunner.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]searchrunner.Address, 0, k)
	for _, p := range n.peers {
		if len(out) >= k {
			break
		}
		out = append(out, p.addr)
	}
	return out
}

// NodeStore returns a searchrunner.NodeStore view of this network.
func (n *Network) NodeStore() searchrunner.NodeStore { return (*nodeStoreView)(n) }

// RumorMill returns a searchrunner.RumorMill view of this network.
func (n *Network) RumorMill() searchrunner.RumorMill { return (*rumorMillView)(n) }

// Router returns a searchrunner.Router view of this network.
func (n *Network) Router() searchrunner.Router { return (*routerView)(n) }

// Rumors returns every address ever reported to the RumorMill, for test
// assertions.
func (n *Network) Rumors() []searchrunner.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]searchrunner.Address, len(n.rumors))
	copy(out, n.rumors)
	return out
}

// QueriedCount returns how many times the peer at path was sent a query,
// for test assertions that a Runner respected its request budget.
func (n *Network) QueriedCount(path uint64) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.queried[path]
}

// TotalQueries returns how many queries were ever sent across every peer in
// this network.
func (n *Network) TotalQueries() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	total := 0
	for _, c := range n.queried {
		total += c
	}
	return total
}

type nodeStoreView Network

func (v *nodeStoreView) Closest(target searchrunner.Target, k int, minVersion int) []searchrunner.Address {
	n := (*Network)(v)
	n.mu.RLock()
	defer n.mu.RUnlock()

	candidates := make([]searchrunner.Address, 0, len(n.peers))
	for key, p := range n.peers {
		if n.bootstrap[key] && p.addr.Version >= minVersion {
			candidates = append(candidates, p.addr)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return searchrunner.Closest(target, candidates[i].IP6, candidates[j].IP6) < 0
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func (v *nodeStoreView) BestForPath(candidate searchrunner.Address) (searchrunner.Address, bool) {
	n := (*Network)(v)
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[candidate.Key]
	if !ok {
		return searchrunner.Address{}, false
	}
	return p.addr, true
}

func (v *nodeStoreView) NodeForPath(path uint64) (searchrunner.Address, bool) {
	n := (*Network)(v)
	n.mu.RLock()
	defer n.mu.RUnlock()
	key, ok := n.byPath[path]
	if !ok {
		return searchrunner.Address{}, false
	}
	return n.peers[key].addr, true
}

func (v *nodeStoreView) BrokenPath(path uint64) {
	n := (*Network)(v)
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.byPath, path)
}

type rumorMillView Network

func (v *rumorMillView) Add(addr searchrunner.Address) {
	n := (*Network)(v)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rumors = append(n.rumors, addr)
}

type routerView Network

// SearchTimeoutMillis implements searchrunner.Router.
func (v *routerView) SearchTimeoutMillis() int { return 500 }

// Send simulates one find-node round trip: after a fixed latency, either
// the query is "dropped" (no event ever arrives, mirroring a request that
// times out) or the target peer answers with its configured neighbors.
func (v *routerView) Send(ctx context.Context, to searchrunner.Address, q searchrunner.Query) (<-chan searchrunner.RouterEvent, error) {
	n := (*Network)(v)
	out := make(chan searchrunner.RouterEvent, 1)

	n.mu.Lock()
	n.queried[to.Path]++
	drop := n.dropPct > 0 && n.rng.Intn(100) < n.dropPct
	p, known := n.peers[to.Key]
	n.mu.Unlock()

	go func() {
		timer := time.NewTimer(n.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if drop || !known {
			return
		}

		records := make([]searchrunner.NodeRecord, len(p.neighbors))
		for i, nb := range p.neighbors {
			records[i] = searchrunner.NodeRecord{Path: nb.Path, Key: nb.Key, Version: nb.Version}
		}
		reply := &searchrunner.Reply{Records: records}

		select {
		case out <- searchrunner.RouterEvent{From: to, Latency: int(n.latency / time.Millisecond), Reply: reply}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}
