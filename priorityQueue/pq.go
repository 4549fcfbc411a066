package priorityQueue

import (
	"container/heap"
)

// An InFlight is an outbound segment waiting to be acknowledged.
type InFlight[T any] struct {
	Key     uint64 // absolute seqno that acknowledges the segment in full
	Length  uint64 // sequence space the segment occupies
	Index   int    // The index of the item in the heap
	Segment T
}

// A PriorityQueue implements heap.Interface and holds in-flight segments,
// lowest Key first.
type PriorityQueue[T any] []*InFlight[T]

func (pq PriorityQueue[T]) Len() int { return len(pq) }

func (pq PriorityQueue[T]) Less(i, j int) bool {
	// We want Pop to give us the oldest segment, so lower keys come first
	return pq[i].Key < pq[j].Key
}

func (pq PriorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*InFlight[T])
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // don't stop the GC from reclaiming the item eventually
	item.Index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// Peek returns the segment with the lowest key without removing it.
func (pq PriorityQueue[T]) Peek() *InFlight[T] {
	if len(pq) == 0 {
		return nil
	}
	return pq[0]
}

// Insert adds a segment keyed by key.
func (pq *PriorityQueue[T]) Insert(key, length uint64, seg T) {
	heap.Push(pq, &InFlight[T]{Key: key, Length: length, Segment: seg})
}

// PopThrough removes every segment whose key is <= key and returns them in
// key order.
func (pq *PriorityQueue[T]) PopThrough(key uint64) []*InFlight[T] {
	var out []*InFlight[T]
	for pq.Len() > 0 && (*pq)[0].Key <= key {
		out = append(out, heap.Pop(pq).(*InFlight[T]))
	}
	return out
}
