package sched

// queue is an intrusive doubly linked list of entries of one priority level.
type queue[T any] struct {
	head *Entry[T]
	tail *Entry[T]
	n    int
}

func (q *queue[T]) empty() bool { return q.head == nil }

func (q *queue[T]) pushTail(e *Entry[T]) {
	e.prev = q.tail
	e.next = nil
	e.list = q
	if q.tail != nil {
		q.tail.next = e
	} else {
		q.head = e
	}
	q.tail = e
	q.n++
}

func (q *queue[T]) pushHead(e *Entry[T]) {
	e.next = q.head
	e.prev = nil
	e.list = q
	if q.head != nil {
		q.head.prev = e
	} else {
		q.tail = e
	}
	q.head = e
	q.n++
}

func (q *queue[T]) remove(e *Entry[T]) {
	if e.list != q {
		return
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		q.tail = e.prev
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		q.head = e.next
	}
	e.next, e.prev, e.list = nil, nil, nil
	q.n--
}

func (q *queue[T]) popHead() *Entry[T] {
	e := q.head
	if e != nil {
		q.remove(e)
	}
	return e
}
