package tilestore

// lruNode is a node in the residency list.
type lruNode struct {
	tile *tile
	prev *lruNode
	next *lruNode
}

// lruList orders resident tiles by last access.
// The head is the most recently used, tail is least recently used.
// The list is not thread-safe; the store mutex guards it.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

// Len returns the number of resident tiles in the list.
func (l *lruList) Len() int {
	return l.len
}

// PushFront adds t at the front (most recently used) and returns its node.
func (l *lruList) PushFront(t *tile) *lruNode {
	node := &lruNode{tile: t}
	l.linkFront(node)
	return node
}

// MoveToFront moves an existing node to the front.
func (l *lruList) MoveToFront(node *lruNode) {
	if node == nil || node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// Remove removes a node from the list.
func (l *lruList) Remove(node *lruNode) {
	if node == nil {
		return
	}
	l.unlink(node)
}

// Oldest returns the least recently used node, or nil if the list is empty.
func (l *lruList) Oldest() *lruNode {
	return l.tail
}

// Clear removes all nodes from the list.
func (l *lruList) Clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}

// linkFront inserts a detached node at the front.
func (l *lruList) linkFront(node *lruNode) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// unlink removes a node from the list and clears its pointers.
func (l *lruList) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	l.len--
}
