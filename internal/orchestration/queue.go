package orchestration

import (
	"container/heap"
	"context"
	"sync"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

type queueItem struct {
	task  *models.ScanTask
	index int
}

type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].task.Seq < h[j].task.Seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

type taskQueue struct {
	mu       sync.Mutex
	items    taskHeap
	byID     map[string]*queueItem
	capacity int
	closed   bool
	notify   chan struct{}
	done     chan struct{}
}

func newTaskQueue(capacity int) *taskQueue {
	if capacity <= 0 {
		capacity = 256
	}
	q := &taskQueue{
		items:    make(taskHeap, 0, capacity),
		byID:     make(map[string]*queueItem),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	heap.Init(&q.items)
	return q
}

func (q *taskQueue) Enqueue(task *models.ScanTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return models.ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return models.ErrQueueFull
	}

	item := &queueItem{task: task}
	heap.Push(&q.items, item)
	q.byID[task.ID] = item

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until a task is available, the queue is closed and
// drained, or the context is cancelled.
func (q *taskQueue) Dequeue(ctx context.Context) (*models.ScanTask, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := heap.Pop(&q.items).(*queueItem)
			delete(q.byID, item.task.ID)
			if len(q.items) > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return item.task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, models.ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Remove takes a queued task out of the heap without dequeuing it.
// It returns false when the task is no longer queued.
func (q *taskQueue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[taskID]
	if !ok || item.index < 0 {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, taskID)
	return true
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
