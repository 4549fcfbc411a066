package priorityQueue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPopThrough(t *testing.T) {
	var pq PriorityQueue[string]
	pq.Insert(5, 2, "de")
	pq.Insert(1, 1, "syn")
	pq.Insert(3, 2, "bc")

	if top := pq.Peek(); top == nil || top.Key != 1 {
		t.Fatalf("Peek = %+v, want key 1", top)
	}

	var got []string
	for _, f := range pq.PopThrough(4) {
		got = append(got, f.Segment)
	}
	if diff := cmp.Diff([]string{"syn", "bc"}, got); diff != "" {
		t.Errorf("popped (-want +got):\n%s", diff)
	}
	if pq.Len() != 1 || pq.Peek().Key != 5 {
		t.Errorf("left %d items, top %+v", pq.Len(), pq.Peek())
	}
	if len(pq.PopThrough(4)) != 0 {
		t.Error("popped a segment above the key")
	}
}

func TestPeekEmpty(t *testing.T) {
	var pq PriorityQueue[int]
	if pq.Peek() != nil {
		t.Error("Peek on empty queue returned an item")
	}
}
