package searchrunner

import "github.com/pkg/errors"

// Soft-error taxonomy. Every one of these is handled locally —
// logged and, where relevant, counted in metrics.go — and never propagated
// to a Start/Inspect caller. Only assertActiveCount's panic, below,
// indicates a bookkeeping bug.
var (
	errBudgetExhausted  = errors.New("search: request budget exhausted")
	errFrontierEmpty    = errors.New("search: frontier empty")
	errAdmissionRefused = errors.New("runner: admission refused")
	errMalformedReply   = errors.New("pipeline: malformed reply")
	errStaleRoute       = errors.New("pipeline: stale route, best-for-path key mismatch")
	errUnsplicableRoute = errors.New("pipeline: route could not be spliced")
	errLoopRoute        = errors.New("pipeline: route loops back through us")
	errGarbageAddress   = errors.New("pipeline: address failed validity check")
)

// assertActiveCount panics if the Runner's bookkeeping of live searches has
// gone negative — the one failure that is not soft.
func assertActiveCount(n int) {
	if n < 0 {
		panic(errors.Errorf("runner: active search count went negative (%d)", n))
	}
}
