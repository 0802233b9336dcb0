package mqtt

import "log"

// message is a serialized MQTT publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while
// disconnected. When full, the oldest message is overwritten.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []message
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]message, capacity)}
}

// push stores msg and reports whether an older message was dropped for it.
func (r *ringBuffer) push(msg message) bool {
	dropped := r.count == len(r.buf)
	if dropped && !r.overflow {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", len(r.buf))
		r.overflow = true
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if !dropped {
		r.count++
	}
	return dropped
}

// drain returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []message {
	if r.count == 0 {
		return nil
	}
	out := make([]message, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
