package kernel

// link is the intrusive hook of a fifo member.
type link[T any] struct {
	next, prev *T
	linked     bool
}

// fifo is an intrusive queue. at returns the hook of a member.
type fifo[T any] struct {
	head, tail *T
	n          int
	at         func(*T) *link[T]
}

func newFifo[T any](at func(*T) *link[T]) fifo[T] {
	return fifo[T]{at: at}
}

func (q *fifo[T]) empty() bool { return q.head == nil }
func (q *fifo[T]) len() int    { return q.n }

func (q *fifo[T]) push(v *T) bool {
	l := q.at(v)
	if l.linked {
		return false
	}
	l.prev, l.next, l.linked = q.tail, nil, true
	if q.tail != nil {
		q.at(q.tail).next = v
	} else {
		q.head = v
	}
	q.tail = v
	q.n++
	return true
}

func (q *fifo[T]) remove(v *T) bool {
	l := q.at(v)
	if !l.linked {
		return false
	}
	if l.next != nil {
		q.at(l.next).prev = l.prev
	} else {
		q.tail = l.prev
	}
	if l.prev != nil {
		q.at(l.prev).next = l.next
	} else {
		q.head = l.next
	}
	*l = link[T]{}
	q.n--
	return true
}

func (q *fifo[T]) pop() *T {
	v := q.head
	if v != nil {
		q.remove(v)
	}
	return v
}

func (q *fifo[T]) each(fn func(*T)) {
	for v := q.head; v != nil; {
		next := q.at(v).next
		fn(v)
		v = next
	}
}
