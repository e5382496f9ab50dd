package searchrunner

import "go.uber.org/zap"

// pipelineEnv carries everything the Response Pipeline needs
// beyond the reply itself: the search's target and bookkeeping, and the
// external collaborators it reports to. It is built fresh for every reply by
// search.handleReply.
type pipelineEnv struct {
	target    Target
	myAddress Target
	from      Address
	lastAsked Address
	inOrder   bool // from.Path == lastAsked.Path
	nodeStore NodeStore
	rumorMill RumorMill
	splicer   Splicer
	compatV1  bool
	logger    *zap.Logger
	metrics   *searchMetrics
}

// applyVersionCompat implements the version-1 compatibility shim: if the
// responding node's own protocol version is below 2, every advertised peer
// version in this reply is treated as 1, because that generation of peer
// misreports its neighbors' versions. The whole list is rewritten up front,
// before the per-record loop, not corrected per candidate.
func applyVersionCompat(env pipelineEnv, records []NodeRecord) {
	if !env.compatV1 || env.from.Version >= 2 {
		return
	}
	for i := range records {
		records[i].Version = 1
	}
}

// isDuplicateEntry reports whether records[i] is superseded by a later
// occurrence of the same key: only the *last*
// occurrence of a repeated key in one reply is processed.
func isDuplicateEntry(records []NodeRecord, i int) bool {
	for j := i + 1; j < len(records); j++ {
		if records[j].Key == records[i].Key {
			return true
		}
	}
	return false
}

// runPipeline ingests a decoded, already-structurally-valid Reply, adding
// qualifying candidates to front. It never returns an error:
// every failure mode here is soft and handled locally (logged,
// counted, and — for loop routes — reported to the node store).
func runPipeline(env pipelineEnv, reply Reply, front *frontier) {
	records := reply.Records
	applyVersionCompat(env, records)

	for i, rec := range records {
		if isDuplicateEntry(records, i) {
			continue
		}

		addr := Address{Key: rec.Key, Version: rec.Version}
		addr.IP6 = Prefix(addr.Key)

		spliced := env.splicer.Splice(rec.Path, env.from.Path)
		if spliced == SplicerSentinel {
			env.logger.Debug("dropping node", zap.Error(errUnsplicableRoute),
				zap.String("target", env.target.String()))
			env.metrics.unsplicable.Inc()
			continue
		}
		addr.Path = spliced

		if addr.IP6 == env.myAddress {
			env.logger.Debug("dropping node", zap.Error(errLoopRoute), zap.Uint64("path", addr.Path))
			env.nodeStore.BrokenPath(addr.Path)
			env.metrics.loopRoutes.Inc()
			continue
		}

		if !ValidAddress(addr.IP6) {
			env.logger.Debug("abandoning reply", zap.Error(errGarbageAddress),
				zap.String("from", env.from.IP6.String()))
			env.metrics.garbageAddresses.Inc()
			break // a garbage address abandons the rest of this reply entirely
		}

		if known, ok := env.nodeStore.NodeForPath(addr.Path); !ok || known.Key != addr.Key {
			env.rumorMill.Add(addr)
		}

		if Closest(env.target, addr.IP6, env.from.IP6) >= 0 {
			// Not strictly closer to the target than the node that
			// returned it: the monotone-progress invariant rejects it, in-order or not.
			continue
		}

		if !env.inOrder {
			// Late reply guard: side effects above
			// (rumor mill, broken-path) still ran; the Frontier doesn't.
			continue
		}

		best := addr
		if n, ok := env.nodeStore.BestForPath(addr); ok {
			best = n
		}
		front.add(best)
	}
}
