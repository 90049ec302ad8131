// Package queue implements the fixed-capacity byte queue used by the relay
// for each direction. It is not safe for concurrent use; the relay loop is
// its only owner.
package queue

// Capacity is the number of bytes a Queue can hold.
const Capacity = 128

// Queue holds pending bytes for one direction.
//
// Bytes are appended at tail and sent from head. The backing array is never
// shifted: once the last pending byte has been consumed both indices return
// to zero and the array is refilled from the start. Appending while tail is
// at Capacity drops the new byte, even if head has advanced.
type Queue struct {
	buf  [Capacity]byte
	head int
	tail int
}

// Push appends b. It returns false (and drops b) when no slot is free.
func (q *Queue) Push(b byte) bool {
	if q.tail >= Capacity {
		return false
	}
	q.buf[q.tail] = b
	q.tail++
	return true
}

// PushPair appends a then b, or neither when fewer than two slots are free.
func (q *Queue) PushPair(a, b byte) bool {
	if q.tail+1 >= Capacity {
		return false
	}
	q.buf[q.tail] = a
	q.buf[q.tail+1] = b
	q.tail += 2
	return true
}

// Peek returns the next byte to send.
func (q *Queue) Peek() (byte, bool) {
	if q.head >= q.tail {
		return 0, false
	}
	return q.buf[q.head], true
}

// Advance consumes the byte returned by Peek. When the queue becomes empty
// both indices are reset to zero.
func (q *Queue) Advance() {
	if q.head >= q.tail {
		return
	}
	q.head++
	if q.head == q.tail {
		q.head, q.tail = 0, 0
	}
}

// Len returns the number of pending bytes.
func (q *Queue) Len() int { return q.tail - q.head }

// Free returns the number of slots left before Push starts dropping.
func (q *Queue) Free() int { return Capacity - q.tail }

// Empty reports whether no byte is pending.
func (q *Queue) Empty() bool { return q.head == q.tail }

// Indices returns head and tail (for diagnostics and tests).
func (q *Queue) Indices() (head, tail int) { return q.head, q.tail }
