package lifecycle

import "github.com/five82/sluice/internal/model"

// DefaultHistoryDepth is the number of ancestors kept behind the held snapshot.
const DefaultHistoryDepth = 3

// Node links a held snapshot to the modified snapshots before it. Nodes belong
// to the coordinator; providers never see them. A node is never modified once
// it has been published, so a chain returned by Coordinator.Head can be walked
// while processing continues.
type Node[T any] struct {
	Snapshot *model.Snapshot[T]
	Previous *Node[T]
}

// Depth returns the number of ancestors behind n.
func (n *Node[T]) Depth() int {
	depth := 0
	for cur := n; cur != nil && cur.Previous != nil; cur = cur.Previous {
		depth++
	}
	return depth
}

// Snapshots returns the chain newest first.
func (n *Node[T]) Snapshots() []*model.Snapshot[T] {
	var out []*model.Snapshot[T]
	for cur := n; cur != nil; cur = cur.Previous {
		out = append(out, cur.Snapshot)
	}
	return out
}

// push returns a new head for s that keeps at most depth ancestors. The
// retained ancestors are copied so nodes reachable from the old head are left
// untouched.
func push[T any](head *Node[T], s *model.Snapshot[T], depth int) *Node[T] {
	n := &Node[T]{Snapshot: s}
	tail := n
	for cur, i := head, 0; cur != nil && i < depth; cur, i = cur.Previous, i+1 {
		tail.Previous = &Node[T]{Snapshot: cur.Snapshot}
		tail = tail.Previous
	}
	return n
}
