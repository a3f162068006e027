// Package list implements a generic doubly-linked list whose links can pop
// themselves out in O(1). The buffer pool's free list and the LRU replacer's
// recency order are both built on top of it.
package list

// List is a doubly-linked list of values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
}

// New returns an empty list.
func New[T any]() *List[T] {
	return &List[T]{}
}

// PeekHead returns the head link, or nil if the list is empty.
func (list *List[T]) PeekHead() *Link[T] {
	return list.head
}

// PeekTail returns the tail link, or nil if the list is empty.
func (list *List[T]) PeekTail() *Link[T] {
	return list.tail
}

// PushHead adds value to the front of the list, returning the new link.
func (list *List[T]) PushHead(value T) *Link[T] {
	newLink := &Link[T]{list: list, next: list.head, value: value}
	if list.head != nil {
		list.head.prev = newLink
	}
	list.head = newLink
	if list.tail == nil {
		list.tail = newLink
	}
	return newLink
}

// PushTail adds value to the back of the list, returning the new link.
func (list *List[T]) PushTail(value T) *Link[T] {
	newLink := &Link[T]{list: list, prev: list.tail, value: value}
	if list.tail != nil {
		list.tail.next = newLink
	}
	list.tail = newLink
	if list.head == nil {
		list.head = newLink
	}
	return newLink
}

// Link is one node of a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// GetValue returns the link's value.
func (link *Link[T]) GetValue() T {
	return link.value
}

// PopSelf removes link from its list in O(1).
func (link *Link[T]) PopSelf() {
	switch {
	case link.prev == nil && link.next == nil:
		link.list.head = nil
		link.list.tail = nil
	case link.prev == nil:
		link.next.prev = nil
		link.list.head = link.next
	case link.next == nil:
		link.prev.next = nil
		link.list.tail = link.prev
	default:
		link.prev.next = link.next
		link.next.prev = link.prev
	}
	link.list = nil
	link.next = nil
	link.prev = nil
}
