// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package intrusive provides a circular doubly-linked list whose nodes are
// embedded in larger structures. The nodes may live in memory the garbage
// collector never scans, so the package holds no allocations of its own and
// never stores anything beyond the two link pointers.
package intrusive

// Node is one element of a circular doubly-linked list. The zero value is not
// usable; a node must be self-looped via Init, or spliced into a list with
// Append, before any other operation.
type Node struct {
	prev, next *Node
}

// Init points the node at itself, making it an empty ring of one.
func (n *Node) Init() {
	n.prev = n
	n.next = n
}

// Unlink removes the node from whatever ring it is part of and leaves it
// self-looped. Unlinking a self-looped node is a no-op.
func (n *Node) Unlink() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = n
	n.next = n
}

// List is the head of a circular doubly-linked list. The head node is an
// anchor only and never corresponds to an element.
type List struct {
	head Node
}

// Init makes the list empty. Must be called before any other operation; the
// zero value is not usable because the head must self-loop.
func (l *List) Init() {
	l.head.Init()
}

// Empty reports whether the list has no elements.
func (l *List) Empty() bool {
	return l.head.next == &l.head
}

// Len counts the elements of the list.
func (l *List) Len() int {
	count := 0
	for n := l.First(); n != nil; n = l.Next(n) {
		count++
	}
	return count
}

// Append splices n in before the head, i.e. at the tail of the list,
// preserving insertion order. n must not currently be a member of any list.
func (l *List) Append(n *Node) {
	last := l.head.prev
	n.prev = last
	n.next = &l.head
	last.next = n
	l.head.prev = n
}

// First returns the front element, or nil if the list is empty.
//
// Iterating by repeatedly taking First and unlinking it is safe against
// arbitrary removals made by callbacks in between, because each step
// re-reads the ring rather than holding a cursor.
func (l *List) First() *Node {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Next returns the element after n, or nil once the iteration has wrapped
// back to the head.
func (l *List) Next(n *Node) *Node {
	if n.next == &l.head {
		return nil
	}
	return n.next
}

// Reattach repairs the ring around a head whose memory has moved.
//
// When the structure embedding the head is relocated by a realloc, the head's
// own prev/next are copied with it and still address the unmoved element
// nodes; only the two element links that pointed back at the head are stale.
// first must be the element that was at the front of the list before the
// move. The repair writes solely through the new head and the still-valid
// element pointers, never through the stale links, so the old block is not
// touched. Calling this when the head did not actually move rewrites the same
// values and is harmless. The list must have been non-empty at the time of
// the move; an empty list is re-established with Init instead.
func (l *List) Reattach(first *Node) {
	l.head.next = first
	first.prev = &l.head
	l.head.prev.next = &l.head
}
