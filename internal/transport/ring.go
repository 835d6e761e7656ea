// internal/transport/ring.go
package transport

// ring is a fixed-capacity byte FIFO. Callers hold the owning mutex.
type ring struct {
	buf  []byte
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) Len() int { return r.size }

// Write appends p, overwriting the oldest bytes when full. It returns how
// many old bytes were lost.
func (r *ring) Write(p []byte) int {
	dropped := 0
	if len(p) >= len(r.buf) {
		dropped = r.size + len(p) - len(r.buf)
		p = p[len(p)-len(r.buf):]
		r.head, r.size = 0, 0
	} else if over := r.size + len(p) - len(r.buf); over > 0 {
		r.discard(over)
		dropped = over
	}

	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)
	return dropped
}

// Read moves up to len(p) bytes out of the ring.
func (r *ring) Read(p []byte) int {
	n := min(len(p), r.size)
	first := copy(p[:n], r.buf[r.head:])
	copy(p[first:n], r.buf)
	r.discard(n)
	return n
}

func (r *ring) discard(n int) {
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
}
