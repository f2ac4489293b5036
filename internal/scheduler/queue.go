// Package scheduler implements the ticket task queue core: an in-memory
// FIFO of pending work plus a picked set, reconciled against the ticket
// store and guarded by the store's conditional updates.
package scheduler

import (
	"time"

	"github.com/xXKillerNoobYT/ticketd/internal/model"
)

// QueuedTask is the scheduler's ephemeral reference to a ticket. It is
// rebuilt from store listings and never outlives the process.
type QueuedTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Version is the ticket version snapshot taken at load/refresh time,
	// used to key the conditional pick update.
	Version int64 `json:"version"`

	// LastPickedAt is set exactly once, when a consumer is handed this
	// task. Nil means never picked; never-picked tasks are exempt from
	// the timeout sweep.
	LastPickedAt *time.Time `json:"last_picked_at,omitempty"`
}

// taskQueue holds the two disjoint sets: the FIFO pending queue and the
// picked set keyed by id. A task is in at most one of them. No I/O.
type taskQueue struct {
	pending []*QueuedTask
	picked  map[string]*QueuedTask
}

func newTaskQueue() *taskQueue {
	return &taskQueue{picked: make(map[string]*QueuedTask)}
}

// load replaces the pending queue with tasks derived from schedulable
// tickets, preserving listing order. The picked set is untouched: tasks
// stay picked until a refresh observes their ticket leaving the
// schedulable statuses. Tickets already picked are not re-added.
func (q *taskQueue) load(tickets []model.Ticket) {
	q.pending = q.pending[:0]
	for i := range tickets {
		t := &tickets[i]
		if !t.Status.Schedulable() {
			continue
		}
		if _, ok := q.picked[t.ID]; ok {
			continue
		}
		q.enqueue(t)
	}
}

// enqueue appends a pending entry snapshotted from the ticket. Filtering
// (schedulable status, not already tracked) is the caller's job.
func (q *taskQueue) enqueue(t *model.Ticket) {
	q.pending = append(q.pending, &QueuedTask{
		ID:      t.ID,
		Title:   t.Title,
		Version: t.Version,
	})
}

// dequeueFront pops the head of the pending queue. The caller moves it
// into the picked set only after the store update succeeds.
func (q *taskQueue) dequeueFront() *QueuedTask {
	if len(q.pending) == 0 {
		return nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	return task
}

// requeueFront pushes a task back to the head, so a failed pick neither
// loses the task nor reorders it past its siblings.
func (q *taskQueue) requeueFront(task *QueuedTask) {
	q.pending = append([]*QueuedTask{task}, q.pending...)
}

// markPicked stamps the pick time and moves the task into the picked set.
func (q *taskQueue) markPicked(task *QueuedTask, now time.Time) {
	task.LastPickedAt = &now
	q.picked[task.ID] = task
}

// removeIfPresent drops the task from whichever set holds it. Reports
// whether anything was removed.
func (q *taskQueue) removeIfPresent(id string) bool {
	if _, ok := q.picked[id]; ok {
		delete(q.picked, id)
		return true
	}
	for i, task := range q.pending {
		if task.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

// contains reports whether the id is in either set.
func (q *taskQueue) contains(id string) bool {
	if _, ok := q.picked[id]; ok {
		return true
	}
	for _, task := range q.pending {
		if task.ID == id {
			return true
		}
	}
	return false
}

// pendingEntry returns the pending entry for id, or nil.
func (q *taskQueue) pendingEntry(id string) *QueuedTask {
	for _, task := range q.pending {
		if task.ID == id {
			return task
		}
	}
	return nil
}

func (q *taskQueue) pendingLen() int { return len(q.pending) }
func (q *taskQueue) pickedLen() int  { return len(q.picked) }

func (q *taskQueue) pendingTitles() []string {
	titles := make([]string, len(q.pending))
	for i, task := range q.pending {
		titles[i] = task.Title
	}
	return titles
}

func (q *taskQueue) pickedTitles() []string {
	titles := make([]string, 0, len(q.picked))
	for _, task := range q.picked {
		titles = append(titles, task.Title)
	}
	return titles
}

// reset clears both sets.
func (q *taskQueue) reset() {
	q.pending = nil
	q.picked = make(map[string]*QueuedTask)
}
