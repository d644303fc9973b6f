package vecmath

import (
	"container/heap"
	"math"
	"sort"
)

// Neighbor is one result row: a distance and the external (or internal,
// depending on call site) id it belongs to.
type Neighbor struct {
	Dist float32
	ID   uint64
}

// SentinelID marks an absent/padding result, per the "reserved value
// MAX_U64 denotes absent" convention.
const SentinelID = math.MaxUint64

// less implements the tie-break rule: smaller distance wins; ties broken
// by smaller id.
func less(a, b Neighbor) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.ID < b.ID
}

// neighborMaxHeap is a max-heap (by the less() order, inverted) used to
// keep the k smallest neighbors seen so far: the root is always the
// current worst of the retained k, so a better candidate replaces it.
type neighborMaxHeap []Neighbor

func (h neighborMaxHeap) Len() int { return len(h) }
func (h neighborMaxHeap) Less(i, j int) bool {
	// inverted: heap root is the largest (worst) element
	return less(h[j], h[i])
}
func (h neighborMaxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborMaxHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// HeapSelector maintains a bounded max-heap of the k best neighbors seen
// so far, the O(N log k) top-k strategy.
type HeapSelector struct {
	k int
	h neighborMaxHeap
}

// NewHeapSelector creates a selector that retains the k smallest-distance
// neighbors pushed into it.
func NewHeapSelector(k int) *HeapSelector {
	s := &HeapSelector{k: k}
	heap.Init(&s.h)
	return s
}

// Push offers a candidate neighbor. It is retained if the heap has fewer
// than k entries, or if it beats the current worst retained entry.
func (s *HeapSelector) Push(n Neighbor) {
	if s.k <= 0 {
		return
	}
	if len(s.h) < s.k {
		heap.Push(&s.h, n)
		return
	}
	if less(n, s.h[0]) {
		s.h[0] = n
		heap.Fix(&s.h, 0)
	}
}

// Results drains the heap into ascending (dist, id) order.
func (s *HeapSelector) Results() []Neighbor {
	out := make([]Neighbor, len(s.h))
	copy(out, s.h)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Merge folds another selector's retained neighbors into this one, used
// to combine per-worker heaps in internal/flatindex after parallel scan.
func (s *HeapSelector) Merge(other *HeapSelector) {
	for _, n := range other.h {
		s.Push(n)
	}
}

// NthSelector implements the "partitioned-select" top-k variant:
// a hand-written quickselect partition over pre-collected candidates,
// then sorting only the front k with sort.Slice. It trades the heap's
// incremental O(log k) pushes for O(N) single-shot partitioning, which
// wins when candidates are already materialized in a slice.
type NthSelector struct {
	k          int
	candidates []Neighbor
}

// NewNthSelector creates a selector that will retain the k smallest
// neighbors out of whatever is fed via PushAll.
func NewNthSelector(k int) *NthSelector {
	return &NthSelector{k: k}
}

// PushAll appends a batch of candidates to be selected over.
func (s *NthSelector) PushAll(ns []Neighbor) {
	s.candidates = append(s.candidates, ns...)
}

// Results partitions candidates so the k smallest-distance neighbors are
// in the front, sorts just that front, and returns it.
func (s *NthSelector) Results() []Neighbor {
	n := len(s.candidates)
	k := s.k
	if k > n {
		k = n
	}
	if k == 0 {
		return nil
	}

	nthElementPartition(s.candidates, k)
	front := s.candidates[:k]
	sort.Slice(front, func(i, j int) bool { return less(front[i], front[j]) })

	out := make([]Neighbor, k)
	copy(out, front)
	return out
}

// nthElementPartition reorders s in place so the k smallest elements (by
// less()) occupy s[:k], unordered among themselves. Implemented as a
// manual quickselect partition.
func nthElementPartition(s []Neighbor, k int) {
	lo, hi := 0, len(s)-1
	for lo < hi {
		p := partition(s, lo, hi)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

func partition(s []Neighbor, lo, hi int) int {
	pivot := s[(lo+hi)/2]
	s[(lo+hi)/2], s[hi] = s[hi], s[(lo+hi)/2]
	store := lo
	for i := lo; i < hi; i++ {
		if less(s[i], pivot) {
			s[i], s[store] = s[store], s[i]
			store++
		}
	}
	s[store], s[hi] = s[hi], s[store]
	return store
}

// PadSentinel pads results to exactly k entries with
// (dist=+Inf, id=MAX_U64), sentinels sorted to the tail. If results
// already has >= k entries it is truncated to k.
func PadSentinel(results []Neighbor, k int) []Neighbor {
	out := make([]Neighbor, k)
	n := len(results)
	if n > k {
		n = k
	}
	copy(out, results[:n])
	for i := n; i < k; i++ {
		out[i] = Neighbor{Dist: float32(math.Inf(1)), ID: SentinelID}
	}
	return out
}
