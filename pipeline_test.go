package searchrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNodeStore struct {
	best       map[uint64]Address
	byPath     map[uint64]Address
	brokenCall []uint64
}

func newFakeNodeStore() *fakeNodeStore {
	return &fakeNodeStore{best: map[uint64]Address{}, byPath: map[uint64]Address{}}
}

func (f *fakeNodeStore) Closest(Target, int, int) []Address { return nil }
func (f *fakeNodeStore) BestForPath(candidate Address) (Address, bool) {
	a, ok := f.best[candidate.Path]
	return a, ok
}
func (f *fakeNodeStore) NodeForPath(path uint64) (Address, bool) {
	a, ok := f.byPath[path]
	return a, ok
}
func (f *fakeNodeStore) BrokenPath(path uint64) { f.brokenCall = append(f.brokenCall, path) }

type fakeRumorMill struct{ added []Address }

func (f *fakeRumorMill) Add(a Address) { f.added = append(f.added, a) }

func baseEnv(ns NodeStore, rm RumorMill, target, from Target) pipelineEnv {
	return pipelineEnv{
		target:    target,
		myAddress: mkTarget(0xee),
		from:      Address{IP6: from, Path: 0x01},
		inOrder:   true,
		nodeStore: ns,
		rumorMill: rm,
		splicer:   NewBitLabelSplicer(),
		logger:    zap.NewNop(),
		metrics:   newSearchMetrics(nil),
	}
}

func TestPipelineAddsProgressingCandidate(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))

	var key [KeySize]byte
	key[0] = 0xfc                 // Prefix derives IP6 from the first 16 bytes of key; needs the overlay prefix byte to be valid
	key[1] = target[TargetSize-1] // and this byte to make it progress toward target
	records := []NodeRecord{{Path: 0x02, Key: key, Version: 2}}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)

	assert.Equal(t, 1, front.len())
	assert.Len(t, rm.added, 1)
}

func TestPipelineDropsDuplicateKeysKeepingLast(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))

	var key [KeySize]byte
	key[0] = 0xfc
	records := []NodeRecord{
		{Path: 0x02, Key: key, Version: 1},
		{Path: 0x03, Key: key, Version: 2},
	}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)

	require.Equal(t, 1, front.len())
	got, ok := front.nextUnqueried()
	require.True(t, ok)
	assert.Equal(t, 2, got.Version, "only the last occurrence of a repeated key should survive")
}

func TestPipelineDetectsLoopRoute(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))
	env.myAddress = Prefix([KeySize]byte{0x09})

	var key [KeySize]byte
	key[0] = 0x09
	records := []NodeRecord{{Path: 0x02, Key: key, Version: 2}}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)

	assert.Equal(t, 0, front.len())
	assert.Len(t, ns.brokenCall, 1)
}

func TestPipelineAbandonsReplyOnGarbageAddress(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))

	var garbageKey, goodKey [KeySize]byte
	// garbageKey's derived prefix does not start with 0xfc, so it fails
	// ValidAddress; the record after it is otherwise perfectly valid and
	// progressing, but the whole reply must still be abandoned.
	garbageKey[0] = 0x01
	goodKey[0] = 0xfc
	goodKey[1] = target[TargetSize-1]
	records := []NodeRecord{
		{Path: 0x02, Key: garbageKey, Version: 2},
		{Path: 0x03, Key: goodKey, Version: 2},
	}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)
	assert.Equal(t, 0, front.len(), "a garbage address abandons the rest of the reply, including records after it")
}

func TestPipelineLateReplyStillRunsSideEffectsButNotFrontier(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))
	env.inOrder = false

	var key [KeySize]byte
	key[0] = 0xfc
	records := []NodeRecord{{Path: 0x02, Key: key, Version: 2}}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)

	assert.Equal(t, 0, front.len(), "late replies must not advance the frontier")
	assert.Len(t, rm.added, 1, "rumor intake still runs for a late reply")
}

func TestPipelineRejectsNonProgressingCandidate(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	// from is already maximally close to target; nothing reported can be
	// strictly closer, so every candidate should be dropped by the
	// progress filter.
	env := baseEnv(ns, rm, target, target)

	var key [KeySize]byte
	key[0] = 0xfc
	key[1] = target[TargetSize-1]
	records := []NodeRecord{{Path: 0x02, Key: key, Version: 2}}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)
	assert.Equal(t, 0, front.len())
}

func TestPipelineAppliesVersionOneCompatShim(t *testing.T) {
	ns := newFakeNodeStore()
	rm := &fakeRumorMill{}
	target := mkTarget(0x00)
	env := baseEnv(ns, rm, target, mkTarget(0x80))
	env.compatV1 = true
	env.from.Version = 1

	var key [KeySize]byte
	key[0] = 0xfc
	key[1] = target[TargetSize-1]
	records := []NodeRecord{{Path: 0x02, Key: key, Version: 9}}

	front := newFrontier(target)
	runPipeline(env, Reply{Records: records}, front)

	got, ok := front.nextUnqueried()
	require.True(t, ok)
	assert.Equal(t, 1, got.Version)
}
