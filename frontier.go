package searchrunner

// frontierEntry is one candidate tracked by a frontier, together with
// whether it has already been queried this search.
type frontierEntry struct {
	addr     Address
	queried  bool
	inserted int // insertion order, used to break exact-distance ties
}

// frontier is the per-search ordered candidate set. It is not safe for
// concurrent use — like every other piece of a search's state, it is only
// ever touched from the Runner's single event-loop goroutine.
type frontier struct {
	target  Target
	entries []*frontierEntry
	byKey   map[[KeySize]byte]*frontierEntry
	next    int
}

// newFrontier returns an empty frontier for the given search target.
func newFrontier(target Target) *frontier {
	return &frontier{
		target: target,
		byKey:  make(map[[KeySize]byte]*frontierEntry),
	}
}

// add inserts addr if no entry with the same key exists yet. Re-adding a
// known key is a no-op, including its queried flag — a node is asked at
// most once per search.
func (f *frontier) add(addr Address) {
	if _, ok := f.byKey[addr.Key]; ok {
		return
	}
	e := &frontierEntry{addr: addr, inserted: f.next}
	f.next++
	f.entries = append(f.entries, e)
	f.byKey[addr.Key] = e
}

// nextUnqueried returns and marks queried the unqueried entry closest to the
// target, breaking ties by insertion order. It returns false if no
// unqueried entry remains.
func (f *frontier) nextUnqueried() (Address, bool) {
	var best *frontierEntry
	for _, e := range f.entries {
		if e.queried {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		switch Closest(f.target, e.addr.IP6, best.addr.IP6) {
		case -1:
			best = e
		case 0:
			if e.inserted < best.inserted {
				best = e
			}
		}
	}
	if best == nil {
		return Address{}, false
	}
	best.queried = true
	return best.addr, true
}

// len reports how many distinct keys are tracked, queried or not.
func (f *frontier) len() int {
	return len(f.entries)
}
