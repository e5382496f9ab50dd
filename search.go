package searchrunner

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MaxRequestsPerSearch is the request budget that terminates a search even
// if the Frontier is not yet empty.
const MaxRequestsPerSearch = 8

// SearchCallback is the caller-supplied observer. It is
// invoked once per reply with the originating node and latency, and exactly
// once more with a zero-value Address, zero latency, and nil reply marking
// termination. No other ordering guarantee is made beyond "terminal follows
// every already-delivered reply".
type SearchCallback func(from Address, latencyMillis int, reply *Reply)

// search is the state of one in-flight lookup. Every
// field is touched only from the owning Runner's event-loop goroutine
// — there is deliberately no mutex here.
type search struct {
	id       uint64
	runner   *Runner
	target   Target
	front    *frontier
	total    int
	lastAsk  Address
	callback SearchCallback

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	terminal bool
}

// newSearch seeds a frontier with the given local nodes and wires up
// cancellation, but does not schedule the first step — the caller
// (Runner.Start) does that asynchronously so control returns to the caller first.
func newSearch(id uint64, r *Runner, target Target, seed []Address, cb SearchCallback) *search {
	ctx, cancel := context.WithCancel(r.ctx)
	front := newFrontier(target)
	for _, a := range seed {
		front.add(a)
	}
	return &search{
		id:       id,
		runner:   r,
		target:   target,
		front:    front,
		callback: cb,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// armTimer (re)arms the progress timer. The very first arm uses delay 0 —
// immediate but still asynchronous, so control returns to the caller of
// Start first. Every subsequent rearm
// uses the router's configured search timeout.
func (s *search) armTimer(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	id := s.id
	r := s.runner
	s.timer = time.AfterFunc(delay, func() {
		r.postTimerFire(id)
	})
}

// finish emits the terminal callback exactly once and tears down the
// search's resources — the Go analogue of freeing a scoped allocation
// region.
func (s *search) finish() {
	if s.terminal {
		return
	}
	s.terminal = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	if s.callback != nil {
		s.callback(Address{}, 0, nil)
	}
	s.runner.retire(s)
}

// step pops a candidate, resolves it against the node store, and either
// dispatches a query or terminates the search.
func (s *search) step() {
	if s.terminal {
		return
	}
	for {
		if s.total >= MaxRequestsPerSearch {
			s.runner.logger.Debug("search terminating", zap.Error(errBudgetExhausted),
				zap.String("target", s.target.String()))
			s.runner.metrics.terminal.WithLabelValues("budget_exhausted").Inc()
			s.finish()
			return
		}

		cand, ok := s.front.nextUnqueried()
		if !ok {
			s.runner.logger.Debug("search terminating", zap.Error(errFrontierEmpty),
				zap.String("target", s.target.String()))
			s.runner.metrics.terminal.WithLabelValues("frontier_empty").Inc()
			s.finish()
			return
		}

		best, ok := s.runner.nodeStore.BestForPath(cand)
		if !ok || best.Key != cand.Key {
			// Stale/superseded route: skip this
			// candidate and loop back to pick the next one, without
			// spending a request on it.
			s.runner.logger.Debug("skipping stale candidate", zap.Error(errStaleRoute),
				zap.String("target", s.target.String()))
			s.runner.metrics.staleRoutes.Inc()
			continue
		}

		s.dispatch(best)
		return
	}
}

// dispatch records best as the last-asked node and sends the query. The
// progress timer is deliberately untouched here: it is
// armed once by Start (delay 0) and thereafter only by timerFire, running on
// its own cadence regardless of how many replies arrive in between.
func (s *search) dispatch(best Address) {
	s.lastAsk = best

	events, err := s.runner.router.Send(s.ctx, best, Query{Target: s.target})
	s.total++
	s.runner.metrics.requestsSent.Inc()

	if err != nil {
		s.runner.logger.Debug("router send failed",
			zap.String("target", s.target.String()), zap.Error(err))
		return
	}

	id := s.id
	r := s.runner
	go func() {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.postReply(id, ev)
		case <-s.ctx.Done():
		}
	}()
}

func (s *search) routerTimeout() time.Duration {
	return time.Duration(s.runner.router.SearchTimeoutMillis()) * time.Millisecond
}

// timerFire rearms the progress timer, then steps.
func (s *search) timerFire() {
	if s.terminal {
		return
	}
	s.armTimer(s.routerTimeout())
	s.step()
}

// handleReply runs the Response Pipeline, invokes the observer, then steps.
func (s *search) handleReply(ev RouterEvent) {
	if s.terminal {
		return
	}

	inOrder := ev.From.Path == s.lastAsk.Path

	if ev.Reply != nil {
		env := pipelineEnv{
			target:    s.target,
			myAddress: s.runner.myAddress,
			from:      ev.From,
			lastAsked: s.lastAsk,
			inOrder:   inOrder,
			nodeStore: s.runner.nodeStore,
			rumorMill: s.runner.rumorMill,
			splicer:   s.runner.splicer,
			compatV1:  s.runner.config.CompatV1,
			logger:    s.runner.logger,
			metrics:   s.runner.metrics,
		}
		runPipeline(env, *ev.Reply, s.front)
	}

	if s.callback != nil {
		s.callback(ev.From, ev.Latency, ev.Reply)
	}

	s.step()
}
