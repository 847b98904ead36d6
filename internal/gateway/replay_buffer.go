package gateway

import (
	"sort"
	"sync"
)

// replayFrame is one broadcast envelope retained for backfill.
type replayFrame struct {
	seq  int64
	data []byte
}

// ReplayBuffer retains the most recent broadcast envelopes of one
// channel so a reconnecting client can backfill a sequence gap instead
// of refetching the whole series. The Broadcaster assigns channel seqs
// monotonically, so entries are always held in seq order and lookups
// binary-search rather than scan.
//
// Envelopes are immutable once built; the buffer stores them by
// reference. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring []replayFrame
	next int // write position
	full bool
}

// NewReplayBuffer creates a buffer retaining up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: make([]replayFrame, capacity)}
}

// Add retains one envelope, evicting the oldest when full. seq must be
// greater than every previously added seq.
func (rb *ReplayBuffer) Add(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.ring[rb.next] = replayFrame{seq: seq, data: data}
	rb.next++
	if rb.next == len(rb.ring) {
		rb.next = 0
		rb.full = true
	}
}

// Between returns the payloads of all retained envelopes with seq in
// [from, to], oldest first.
func (rb *ReplayBuffer) Between(from, to int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.size()
	// First retained entry with seq >= from.
	lo := sort.Search(n, func(i int) bool {
		return rb.at(i).seq >= from
	})

	var out [][]byte
	for i := lo; i < n; i++ {
		e := rb.at(i)
		if e.seq > to {
			break
		}
		out = append(out, e.data)
	}
	return out
}

// Newest returns the highest retained seq, or 0 when empty.
func (rb *ReplayBuffer) Newest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	n := rb.size()
	if n == 0 {
		return 0
	}
	return rb.at(n - 1).seq
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size()
}

func (rb *ReplayBuffer) size() int {
	if rb.full {
		return len(rb.ring)
	}
	return rb.next
}

// at maps a logical index (0 = oldest) onto the ring.
func (rb *ReplayBuffer) at(logical int) replayFrame {
	if rb.full {
		return rb.ring[(rb.next+logical)%len(rb.ring)]
	}
	return rb.ring[logical]
}
