package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Acquire after Close has begun.
var ErrPoolClosed = errors.New("renderer pool closed")

// Pool lends a fixed set of renderers to callers one at a time.
type Pool struct {
	free      chan Renderer
	all       []Renderer
	closing   chan struct{}
	closeOnce sync.Once
	closeMu   sync.Mutex
	drained   int

	outstanding atomic.Int64
	peak        atomic.Int64
}

// NewPool takes ownership of renderers. The pool's capacity is len(renderers).
func NewPool(renderers []Renderer) *Pool {
	p := &Pool{
		free:    make(chan Renderer, len(renderers)),
		all:     append([]Renderer(nil), renderers...),
		closing: make(chan struct{}),
	}
	for _, r := range renderers {
		p.free <- r
	}
	return p
}

// Size returns the number of renderers the pool manages.
func (p *Pool) Size() int { return len(p.all) }

// Acquire waits for a free renderer. It fails when ctx ends or the pool is
// closing.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case r := <-p.free:
		select {
		case <-p.closing:
			// Close may be draining; hand the renderer back to it.
			p.free <- r
			return nil, ErrPoolClosed
		default:
		}
		n := p.outstanding.Add(1)
		for {
			cur := p.peak.Load()
			if n <= cur || p.peak.CompareAndSwap(cur, n) {
				break
			}
		}
		return &Lease{pool: p, renderer: r}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closing:
		return nil, ErrPoolClosed
	}
}

func (p *Pool) release(r Renderer) {
	p.outstanding.Add(-1)
	p.free <- r
}

// Stats reports current and peak concurrent leases.
func (p *Pool) Stats() (outstanding, peak int) {
	return int(p.outstanding.Load()), int(p.peak.Load())
}

// Close stops new acquisitions, waits until every lease has been released,
// and closes each renderer exactly once. If ctx ends first, Close returns
// ctx.Err(); renderers still on lease at that point are not closed, and a
// later Close call resumes waiting for them.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.closing) })

	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	var errs []error
	for p.drained < len(p.all) {
		select {
		case r := <-p.free:
			p.drained++
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
	}
	return errors.Join(errs...)
}

// Lease is exclusive use of one renderer.
type Lease struct {
	pool     *Pool
	renderer Renderer
	once     sync.Once
}

// Renderer returns the leased renderer. It must not be used after Release.
func (l *Lease) Renderer() Renderer { return l.renderer }

// Release returns the renderer to the pool. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.release(l.renderer) })
}
