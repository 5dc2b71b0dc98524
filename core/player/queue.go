package player

import "errors"

// ErrNotQueued is returned when the active track is set to an id that is not
// a member of the current queue.
var ErrNotQueued = errors.New("player: track is not in the queue")

// Queue holds the ordered play queue for one listening session: the track ids
// in play order and the currently active track. Insertion order defines play
// order and duplicates are kept as-is. A Queue has a single logical owner and
// performs no locking of its own; every mutation is synchronous and immediately
// visible to subsequent reads.
type Queue struct {
	ids      []string
	activeID string
	active   bool
}

// NewQueue creates an empty queue with no active track.
func NewQueue() *Queue {
	return &Queue{}
}

// SetIDs replaces the queue wholesale. An empty slice is accepted. The input
// is copied so later mutation by the caller cannot alias the queue. If the
// previously active track is no longer a member it is cleared.
func (q *Queue) SetIDs(ids []string) {
	q.ids = append([]string(nil), ids...)
	if q.active && q.indexOf(q.activeID) < 0 {
		q.activeID = ""
		q.active = false
	}
}

// SetActive marks id as the currently playing track. The id must be a member
// of the queue; ErrNotQueued is returned otherwise so "playing something not
// in the list" states cannot be reached.
func (q *Queue) SetActive(id string) error {
	if q.indexOf(id) < 0 {
		return ErrNotQueued
	}
	q.activeID = id
	q.active = true
	return nil
}

// Reset clears both the queue and the active track. Idempotent; used on
// logout or explicit stop.
func (q *Queue) Reset() {
	q.ids = nil
	q.activeID = ""
	q.active = false
}

// Next advances to the track after the active one and returns the new active
// id. The last track wraps around to the first; when nothing is active the
// first track is selected. On an empty queue Next is a no-op and reports false.
func (q *Queue) Next() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	idx := -1
	if q.active {
		idx = q.indexOf(q.activeID)
	}
	next := idx + 1
	if next >= len(q.ids) {
		next = 0
	}
	q.activeID = q.ids[next]
	q.active = true
	return q.activeID, true
}

// Previous steps back to the track before the active one and returns the new
// active id. The first track (or an absent active track) wraps around to the
// last. On an empty queue Previous is a no-op and reports false.
func (q *Queue) Previous() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	idx := -1
	if q.active {
		idx = q.indexOf(q.activeID)
	}
	prev := idx - 1
	if prev < 0 {
		prev = len(q.ids) - 1
	}
	q.activeID = q.ids[prev]
	q.active = true
	return q.activeID, true
}

// IDs returns a copy of the queued track ids in play order.
func (q *Queue) IDs() []string {
	return append([]string(nil), q.ids...)
}

// ActiveID returns the active track id, if any.
func (q *Queue) ActiveID() (string, bool) {
	return q.activeID, q.active
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.ids)
}

// indexOf returns the index of the first occurrence of id, or -1.
func (q *Queue) indexOf(id string) int {
	for i, v := range q.ids {
		if v == id {
			return i
		}
	}
	return -1
}
