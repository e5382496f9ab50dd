package searchrunner

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SearchData is the snapshot Runner.Inspect returns. For an out-of-range
// index Target, LastAsked and TotalRequests are zero — there is no error
// return; ActiveSearches is filled in either way.
type SearchData struct {
	Target         Target
	LastAsked      Address
	TotalRequests  int
	ActiveSearches int
}

// Runner owns the set of active searches for one overlay DHT instance. All
// of its mutable state is confined to a single goroutine (run); every
// exported method hands work to that goroutine over actions and blocks for
// the (usually trivial) result, giving callers normal synchronous Go method
// calls while preserving single-threaded cooperative event-loop semantics.
type Runner struct {
	config    Config
	myAddress Target
	nodeStore NodeStore
	router    Router
	rumorMill RumorMill
	splicer   Splicer
	logger    *zap.Logger
	metrics   *searchMetrics

	ctx    context.Context
	cancel context.CancelFunc

	actions chan func()
	done    chan struct{}

	searches    map[uint64]*search
	order       []uint64 // most-recently-started first
	activeCount int
	nextID      uint64
}

// NewRunner constructs a Runner. reg may be nil to skip Prometheus
// registration (used by tests that construct many throwaway Runners).
func NewRunner(
	myAddress Target,
	nodeStore NodeStore,
	router Router,
	rumorMill RumorMill,
	splicer Splicer,
	logger *zap.Logger,
	reg prometheus.Registerer,
	cfg Config,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if splicer == nil {
		splicer = NewBitLabelSplicer()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		config:    cfg.withDefaults(),
		myAddress: myAddress,
		nodeStore: nodeStore,
		router:    router,
		rumorMill: rumorMill,
		splicer:   splicer,
		logger:    logger,
		metrics:   newSearchMetrics(reg),
		ctx:       ctx,
		cancel:    cancel,
		actions:   make(chan func()),
		done:      make(chan struct{}),
		searches:  make(map[uint64]*search),
	}
	go r.run()
	return r
}

// run is the single event-loop goroutine. It does
// nothing but execute closures handed to it by exported methods, timers, and
// the Router's per-search reader goroutines.
func (r *Runner) run() {
	defer close(r.done)
	for {
		select {
		case action, ok := <-r.actions:
			if !ok {
				return
			}
			action()
		case <-r.ctx.Done():
			return
		}
	}
}

// do posts a closure onto the event loop and waits for it to run, giving
// callers of exported methods ordinary synchronous semantics.
func (r *Runner) do(f func()) {
	reply := make(chan struct{})
	select {
	case r.actions <- func() { f(); close(reply) }:
		<-reply
	case <-r.ctx.Done():
	}
}

// Close stops the event loop and cancels every active search, releasing
// their timers and cancelling their Router promises — the Go analogue of
// freeing the Runner's whole allocator tree.
func (r *Runner) Close() {
	r.cancel()
	<-r.done
}

// Start begins an iterative search for target. It returns false if the
// concurrency cap is saturated or the local routing table has nothing to
// seed with; both are soft admission failures, so Start reports them with a
// bool rather than an error.
func (r *Runner) Start(target Target, cb SearchCallback) bool {
	var admitted bool
	r.do(func() {
		if r.activeCount > r.config.MaxConcurrentSearches {
			r.logger.Debug("refusing admission", zap.Error(errAdmissionRefused),
				zap.Int("active", r.activeCount))
			return
		}

		seed := r.nodeStore.Closest(target, r.config.SeedSize, r.config.CurrentProtocolVersion)
		if len(seed) == 0 {
			r.logger.Debug("refusing admission", zap.Error(errAdmissionRefused),
				zap.String("target", target.String()))
			return
		}

		id := atomic.AddUint64(&r.nextID, 1)
		s := newSearch(id, r, target, seed, cb)

		r.searches[id] = s
		r.order = append([]uint64{id}, r.order...)
		r.activeCount++
		r.metrics.activeSearches.Set(float64(r.activeCount))

		s.armTimer(0)
		admitted = true
	})
	return admitted
}

// Inspect returns a snapshot of the index-th active search.
// Traversal order is stable for a fixed set of searches but is not part of
// the public contract.
func (r *Runner) Inspect(index int) SearchData {
	var out SearchData
	r.do(func() {
		out.ActiveSearches = r.activeCount
		if index < 0 || index >= len(r.order) {
			return
		}
		s := r.searches[r.order[index]]
		if s == nil {
			return
		}
		out.Target = s.target
		out.LastAsked = s.lastAsk
		out.TotalRequests = s.total
	})
	return out
}

// retire unlinks a finished search and decrements the active count — the
// on-free hook, including its fatal assertion.
func (r *Runner) retire(s *search) {
	if _, ok := r.searches[s.id]; !ok {
		return
	}
	delete(r.searches, s.id)
	for i, id := range r.order {
		if id == s.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.activeCount--
	assertActiveCount(r.activeCount)
	r.metrics.activeSearches.Set(float64(r.activeCount))
}

// postReply and postTimerFire are how events from outside the event-loop
// goroutine (a Router reply, a fired time.Timer) re-enter it. Both are safe
// to call after the search has already been retired: the lookup below
// simply finds nothing to do.
func (r *Runner) postReply(searchID uint64, ev RouterEvent) {
	r.do(func() {
		if s := r.searches[searchID]; s != nil {
			s.handleReply(ev)
		}
	})
}

func (r *Runner) postTimerFire(searchID uint64) {
	r.do(func() {
		if s := r.searches[searchID]; s != nil {
			s.timerFire()
		}
	})
}
