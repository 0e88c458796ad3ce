package conversation

import "kb-rag-api/internal/domain/entity"

// ring keeps the most recent cap turns in insertion order.
type ring struct {
	buf   []entity.Turn
	start int
	n     int
}

func newRing(capacity int) *ring {
	if capacity < 2 {
		capacity = 2
	}
	return &ring{buf: make([]entity.Turn, capacity)}
}

func (r *ring) push(t entity.Turn) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = t
		r.n++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

// last returns up to k most recent turns, oldest first.
func (r *ring) last(k int) []entity.Turn {
	if k > r.n || k < 0 {
		k = r.n
	}
	out := make([]entity.Turn, k)
	for i := 0; i < k; i++ {
		out[i] = r.buf[(r.start+r.n-k+i)%len(r.buf)]
	}
	return out
}

func (r *ring) all() []entity.Turn {
	return r.last(r.n)
}

func (r *ring) len() int {
	return r.n
}

func (r *ring) clone() *ring {
	cp := &ring{buf: make([]entity.Turn, len(r.buf)), start: r.start, n: r.n}
	copy(cp.buf, r.buf)
	return cp
}
