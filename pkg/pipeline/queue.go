package pipeline

import "container/heap"

// readyQueue is a heap of step indexes.
type readyQueue struct {
	items []int
	less  func(a, b int) bool
}

func newReadyQueue(less func(a, b int) bool) *readyQueue {
	return &readyQueue{less: less}
}

func (q *readyQueue) Len() int           { return len(q.items) }
func (q *readyQueue) Less(i, j int) bool { return q.less(q.items[i], q.items[j]) }
func (q *readyQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *readyQueue) Push(x any)         { q.items = append(q.items, x.(int)) }

func (q *readyQueue) Pop() any {
	n := len(q.items)
	x := q.items[n-1]
	q.items = q.items[:n-1]

	return x
}

func (q *readyQueue) push(idx int) { heap.Push(q, idx) }

func (q *readyQueue) pop() int { return heap.Pop(q).(int) }

func (q *readyQueue) peek() int { return q.items[0] }
