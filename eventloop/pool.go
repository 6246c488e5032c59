package eventloop

import (
	"runtime"
	"sync/atomic"
)

// A Pool owns a fixed set of loops and hands them out round-robin, so
// groups of subscribers can be spread across goroutines.
type Pool struct {
	loops []*Loop
	next  atomic.Uint32
}

// NewPool starts n loops. If n <= 0, one loop per logical CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{loops: make([]*Loop, n)}
	for i := range p.loops {
		p.loops[i] = New()
	}
	return p
}

// Next returns the next loop in round-robin order.
func (p *Pool) Next() *Loop {
	return p.loops[int((p.next.Add(1)-1)%uint32(len(p.loops)))]
}

// Size returns the number of loops in the pool.
func (p *Pool) Size() int {
	return len(p.loops)
}

// Close stops every loop in the pool.
func (p *Pool) Close() error {
	for _, l := range p.loops {
		l.Close()
	}
	return nil
}
