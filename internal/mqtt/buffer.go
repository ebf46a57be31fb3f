package mqtt

import "log"

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds messages produced while offline, oldest first, up to a
// fixed capacity. A retained message replaces any retained message already
// queued for its topic, since the broker would only keep the last one.
// Callers synchronize.
type ringBuffer struct {
	slots   []bufferedMsg
	start   int // oldest message
	n       int
	dropped int // lost to overflow since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{slots: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained {
		for i := 0; i < r.n; i++ {
			j := (r.start + i) % len(r.slots)
			if r.slots[j].retained && r.slots[j].topic == msg.topic {
				r.remove(i)
				break
			}
		}
	}

	if r.n == len(r.slots) {
		if r.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", len(r.slots))
		}
		r.dropped++
		r.start = (r.start + 1) % len(r.slots)
		r.n--
	}
	r.slots[(r.start+r.n)%len(r.slots)] = msg
	r.n++
}

// remove deletes the i-th oldest message, shifting newer ones down.
func (r *ringBuffer) remove(i int) {
	for ; i < r.n-1; i++ {
		r.slots[(r.start+i)%len(r.slots)] = r.slots[(r.start+i+1)%len(r.slots)]
	}
	r.n--
}

// drainAll empties the buffer, returning its messages oldest first and the
// number lost to overflow.
func (r *ringBuffer) drainAll() ([]bufferedMsg, int) {
	var out []bufferedMsg
	for i := 0; i < r.n; i++ {
		out = append(out, r.slots[(r.start+i)%len(r.slots)])
	}
	dropped := r.dropped
	r.start, r.n, r.dropped = 0, 0, 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.n
}
