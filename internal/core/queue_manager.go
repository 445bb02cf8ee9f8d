package core

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/disgoorg/snowflake/v2"
)

// QueueManager holds the pending entries of a session. It is not safe for
// concurrent use; the engine loop owns it.
type QueueManager struct {
	queue         []QueueEntry
	shuffledQueue []QueueEntry
	isShuffled    bool
	rng           *rand.Rand
}

// NewQueueManager creates an empty queue. A nil rng uses a randomly seeded source.
func NewQueueManager(rng *rand.Rand) *QueueManager {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &QueueManager{rng: rng}
}

// active returns the ordering mutations and reads apply to.
func (q *QueueManager) active() *[]QueueEntry {
	if q.isShuffled {
		return &q.shuffledQueue
	}
	return &q.queue
}

// Len returns the number of pending entries.
func (q *QueueManager) Len() int {
	return len(*q.active())
}

// IsShuffled reports whether a shuffled ordering is waiting to be adopted.
func (q *QueueManager) IsShuffled() bool {
	return q.isShuffled
}

// Enqueue appends entry and returns its 1-based position.
func (q *QueueManager) Enqueue(entry QueueEntry) int {
	list := q.active()
	*list = append(*list, entry)
	return len(*list)
}

// InsertNext puts entry at the head. It fails with ErrNotSupported when the base
// queue is empty so the caller can fall back to Enqueue.
func (q *QueueManager) InsertNext(entry QueueEntry) error {
	if len(q.queue) == 0 {
		return ErrNotSupported
	}

	list := q.active()
	*list = append(*list, QueueEntry{})
	copy((*list)[1:], (*list)[:len(*list)-1])
	(*list)[0] = entry
	return nil
}

// PushFront puts entry at the head regardless of queue state.
func (q *QueueManager) PushFront(entry QueueEntry) {
	list := q.active()
	*list = append([]QueueEntry{entry}, *list...)
}

// Move relocates the entry at 1-based position from to 1-based position to.
// The queue is unchanged on error.
func (q *QueueManager) Move(from, to int) error {
	list := q.active()
	src, dst := from-1, to-1

	if src < 0 || dst < 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMovePosition)
	}
	if src >= len(*list) || dst >= len(*list) {
		return fmt.Errorf("%w: %w (queue has %d entries)", ErrValidation, ErrMoveRange, len(*list))
	}
	if src == dst {
		return nil
	}

	entry := (*list)[src]
	*list = append((*list)[:src], (*list)[src+1:]...)
	*list = append((*list)[:dst], append([]QueueEntry{entry}, (*list)[dst:]...)...)
	return nil
}

// Shuffle stores a uniform permutation of the active ordering as the pending
// ordering. The base queue itself is untouched until the next PopHead.
func (q *QueueManager) Shuffle() error {
	source := *q.active()
	if len(source) == 0 {
		return ErrEmptyQueue
	}

	shuffled := make([]QueueEntry, len(source))
	copy(shuffled, source)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := q.rng.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	q.shuffledQueue = shuffled
	q.isShuffled = true
	return nil
}

// Peek returns the head of the active ordering.
func (q *QueueManager) Peek() (QueueEntry, bool) {
	list := q.active()
	if len(*list) == 0 {
		return QueueEntry{}, false
	}
	return (*list)[0], true
}

// PopHead adopts a pending shuffle and removes the head entry.
func (q *QueueManager) PopHead() (QueueEntry, bool) {
	if q.isShuffled {
		q.queue = q.shuffledQueue
		q.shuffledQueue = nil
		q.isShuffled = false
	}

	if len(q.queue) == 0 {
		return QueueEntry{}, false
	}

	head := q.queue[0]
	q.queue[0] = QueueEntry{}
	q.queue = q.queue[1:]
	return head, true
}

// Snapshot returns a copy of the active ordering.
func (q *QueueManager) Snapshot() []QueueEntry {
	list := q.active()
	out := make([]QueueEntry, len(*list))
	copy(out, *list)
	return out
}

// Update replaces the track of the entry with the given id in both orderings.
func (q *QueueManager) Update(id uint64, track Track) bool {
	found := false
	for _, list := range [][]QueueEntry{q.queue, q.shuffledQueue} {
		for i := range list {
			if list[i].ID == id {
				list[i].Track = track
				found = true
			}
		}
	}
	return found
}

// Remove deletes the entry with the given id from both orderings.
func (q *QueueManager) Remove(id uint64) bool {
	removedBase := removeEntry(&q.queue, id)
	removedShuffled := removeEntry(&q.shuffledQueue, id)
	return removedBase || removedShuffled
}

func removeEntry(list *[]QueueEntry, id uint64) bool {
	for i := range *list {
		if (*list)[i].ID == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// Repin points every pending entry at channel.
func (q *QueueManager) Repin(channel snowflake.ID) {
	for _, list := range [][]QueueEntry{q.queue, q.shuffledQueue} {
		for i := range list {
			list[i].Channel = channel
		}
	}
}

// Clear empties both orderings.
func (q *QueueManager) Clear() {
	q.queue = nil
	q.shuffledQueue = nil
	q.isShuffled = false
}

// ParseMoveArgs converts command arguments into 1-based move positions.
// A single argument moves that entry to the head.
func ParseMoveArgs(args []string) (from, to int, err error) {
	if len(args) == 0 || len(args) > 2 {
		return 0, 0, fmt.Errorf("%w: %w", ErrValidation, ErrMoveArgs)
	}

	positions := make([]int, len(args))
	for i, arg := range args {
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return 0, 0, fmt.Errorf("%w: %w", ErrValidation, ErrMoveArgs)
		}
		positions[i] = n
	}

	if len(positions) == 1 {
		return positions[0], 1, nil
	}
	return positions[0], positions[1], nil
}
