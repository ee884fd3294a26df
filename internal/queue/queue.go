// internal/queue/queue.go
package queue

import (
	"time"

	"github.com/xoduel/xoduel/internal/clock"
)

// Queue is the FIFO matchmaking queue. Removal is lazy: entries stay in the
// arena as tombstones (absent from the member set) and the head index is
// advanced opportunistically during matchmaking instead of compacting the
// arena on every leave.
//
// The queue is a plain data structure; the dispatcher owns it and serializes
// all access, so there is no internal locking.
type Queue struct {
	clk      clock.Clock
	throttle time.Duration

	arena    []entry
	members  map[string]struct{}
	head     int
	lastJoin map[string]time.Time
}

type entry struct {
	uid string
	ts  time.Time
}

// Pair is two distinct identities matched in FIFO order.
type Pair struct {
	A, B string
}

// JoinResult describes the outcome of a join attempt.
type JoinResult struct {
	// Throttled is set when the identity joined within the throttle window;
	// RetryIn is how long it must wait before the next attempt counts.
	Throttled bool
	RetryIn   time.Duration

	// Added is true when a new entry was appended (false when the identity
	// was already queued).
	Added bool
}

func New(clk clock.Clock, throttle time.Duration) *Queue {
	return &Queue{
		clk:      clk,
		throttle: throttle,
		members:  make(map[string]struct{}),
		lastJoin: make(map[string]time.Time),
	}
}

// Join attempts to enqueue uid. The throttle window is tracked per identity
// independently of queue membership, so a retry loop cannot flood the arena.
func (q *Queue) Join(uid string) JoinResult {
	now := q.clk.Now()
	if last, ok := q.lastJoin[uid]; ok {
		if elapsed := now.Sub(last); elapsed < q.throttle {
			return JoinResult{Throttled: true, RetryIn: q.throttle - elapsed}
		}
	}
	q.lastJoin[uid] = now

	if _, queued := q.members[uid]; queued {
		return JoinResult{}
	}
	q.members[uid] = struct{}{}
	q.arena = append(q.arena, entry{uid: uid, ts: now})
	return JoinResult{Added: true}
}

// Leave tombstones uid's entry. Returns false if uid was not queued.
func (q *Queue) Leave(uid string) bool {
	if _, ok := q.members[uid]; !ok {
		return false
	}
	delete(q.members, uid)
	return true
}

// Contains reports whether uid is currently queued.
func (q *Queue) Contains(uid string) bool {
	_, ok := q.members[uid]
	return ok
}

// Position returns the 1-indexed position of uid among still-valid entries
// at or before it, scanning from the head. Returns 0 if uid is not queued.
func (q *Queue) Position(uid string) int {
	if _, ok := q.members[uid]; !ok {
		return 0
	}
	position := 0
	for i := q.head; i < len(q.arena); i++ {
		if _, ok := q.members[q.arena[i].uid]; !ok {
			continue
		}
		position++
		if q.arena[i].uid == uid {
			return position
		}
	}
	return 0
}

// Len counts still-valid entries.
func (q *Queue) Len() int {
	return len(q.members)
}

// ForgetThrottle drops the per-identity join timestamp, used when the
// identity's connection goes away.
func (q *Queue) ForgetThrottle(uid string) {
	delete(q.lastJoin, uid)
}

// Matchmake pairs queued identities in FIFO order. It repeatedly scans
// forward from the head for the first valid entry A and a following valid
// entry B with a different identity; each found pair is removed and the head
// advanced past B. If only a lone valid entry remains the head is compacted
// to its index and it is reported as the waiter.
func (q *Queue) Matchmake() (pairs []Pair, waiter string) {
	search := q.head
	for {
		firstIdx := q.nextValid(search, "")
		if firstIdx < 0 {
			q.head = len(q.arena)
			return pairs, ""
		}
		first := q.arena[firstIdx].uid

		secondIdx := q.nextValid(firstIdx+1, first)
		if secondIdx < 0 {
			q.head = firstIdx
			return pairs, first
		}
		second := q.arena[secondIdx].uid

		delete(q.members, first)
		delete(q.members, second)
		q.head = secondIdx + 1

		// Distinctness is guaranteed by nextValid's skip, but a duplicate
		// entry must never produce a self-match.
		if first != second {
			pairs = append(pairs, Pair{A: first, B: second})
		}
		search = q.head
	}
}

// nextValid finds the next non-tombstoned arena index at or after start,
// skipping skipUID.
func (q *Queue) nextValid(start int, skipUID string) int {
	for i := start; i < len(q.arena); i++ {
		uid := q.arena[i].uid
		if _, ok := q.members[uid]; !ok {
			continue
		}
		if skipUID != "" && uid == skipUID {
			continue
		}
		return i
	}
	return -1
}
