package domwatch

import (
	"container/heap"
	"time"

	"golang.org/x/net/html"
)

// Task is one pending readiness check for a message node.
type Task struct {
	Due     time.Time
	Attempt int // zero based
	Node    *html.Node

	seq uint64
}

// Scheduler is a queue of readiness checks ordered by due time, ties
// broken by insertion order. The owner arms a single timer for Next and
// drains with PopDue; tasks never reschedule themselves.
type Scheduler struct {
	h   taskHeap
	seq uint64
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler { return &Scheduler{} }

// Push enqueues t.
func (s *Scheduler) Push(t Task) {
	s.seq++
	t.seq = s.seq
	heap.Push(&s.h, t)
}

// Next returns the due time of the earliest task.
func (s *Scheduler) Next() (time.Time, bool) {
	if len(s.h) == 0 {
		return time.Time{}, false
	}
	return s.h[0].Due, true
}

// PopDue removes and returns every task due at or before now, earliest
// first.
func (s *Scheduler) PopDue(now time.Time) []Task {
	var out []Task
	for len(s.h) > 0 && !s.h[0].Due.After(now) {
		out = append(out, heap.Pop(&s.h).(Task))
	}
	return out
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int { return len(s.h) }

// Clear drops every queued task.
func (s *Scheduler) Clear() { s.h = s.h[:0] }

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].Due.Before(h[j].Due)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = Task{}
	*h = old[:n-1]
	return t
}
