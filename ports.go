package searchrunner

import "context"

// NodeStore is the local routing table.
type NodeStore interface {
	// Closest returns up to k locally-known nodes closest to target with
	// protocol version >= minVersion.
	Closest(target Target, k int, minVersion int) []Address

	// BestForPath resolves the currently-best-known node for a candidate
	// address, by path.
	// The bool is false if the node store has nothing for that path.
	BestForPath(candidate Address) (Address, bool)

	// NodeForPath looks up whatever node (if any) the store currently
	// has recorded at path, regardless of key.
	NodeForPath(path uint64) (Address, bool)

	// BrokenPath reports a route that must be dead because it loops back
	// through us.
	BrokenPath(path uint64)
}

// RumorMill is the new-node intake queue.
type RumorMill interface {
	Add(addr Address)
}

// Query is the outbound find-node wire message: q="fn", tar=target.
type Query struct {
	Target Target
}

// Reply is the inbound wire message: n (node records) and np
// (per-record protocol versions), pre-parsed into NodeRecords by the
// transport's wire codec (wire.go). A nil Reply.Records with a non-nil error
// means the payload was malformed and must be dropped.
type Reply struct {
	Records []NodeRecord
}

// NodeRecord is one entry of an inbound reply: a route, a key, and the
// protocol version reported for it.
type NodeRecord struct {
	Path    uint64
	Key     [KeySize]byte
	Version int
}

// RouterEvent is what the Router delivers back to a Search: a reply from a
// specific node. When no reply comes, nothing is delivered and the search's
// own progress timer moves it on. The Runner never blocks waiting on these
// directly — each one is posted back onto the Runner's event loop (see
// Runner.postReply in runner.go).
type RouterEvent struct {
	From    Address
	Latency int // milliseconds
	Reply   *Reply
}

// Router is the RPC/promise layer: sending a query to a
// node and receiving replies with latency. Send is asynchronous — the
// returned channel receives at most one RouterEvent before the context
// passed to Send is done; cancelling that context is how a Search tells the
// Router its promise is no longer wanted.
type Router interface {
	Send(ctx context.Context, to Address, q Query) (<-chan RouterEvent, error)

	// SearchTimeoutMillis is router.search_timeout_ms(): how
	// long a Search waits for a reply before re-invoking step().
	SearchTimeoutMillis() int
}
