// Package pool keeps a fixed set of cryptonet sessions and lends them out one
// caller at a time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/puddle/v2"
	"golang.org/x/sync/semaphore"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

var ErrClosed = errors.New("pool: closed")

type resource = puddle.Resource[*cryptonet.Session]

// Pool lends sessions created from one library with shared settings.
//
// Every lease holds one unit of gate; SetConfiguration takes all of them, so
// it runs only while no session is lent out and concurrent reconfigurations
// queue instead of splitting the pool between them.
type Pool struct {
	res  *puddle.Pool[*cryptonet.Session]
	gate *semaphore.Weighted
	size int

	mu       sync.Mutex
	leased   map[*cryptonet.Session]*resource
	config   any
	closed   bool
	closeErr []error
	once     sync.Once
}

// New opens size sessions with settings. On failure every session opened so
// far is closed again.
func New(ctx context.Context, lib *cryptonet.Library, settings any, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool: size must be at least 1, got %d", size)
	}
	p := &Pool{
		gate:   semaphore.NewWeighted(int64(size)),
		size:   size,
		leased: make(map[*cryptonet.Session]*resource, size),
	}
	res, err := puddle.NewPool(&puddle.Config[*cryptonet.Session]{
		Constructor: func(ctx context.Context) (*cryptonet.Session, error) {
			return p.open(ctx, lib, settings)
		},
		Destructor: p.destroy,
		MaxSize:    int32(size),
	})
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	p.res = res

	for i := 0; i < size; i++ {
		if err := res.CreateResource(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("pool: session %d: %w", i, err)
		}
	}
	return p, nil
}

// open creates a session and brings it up to the pool's current
// configuration, so a replacement matches the sessions it joins.
func (p *Pool) open(ctx context.Context, lib *cryptonet.Library, settings any) (*cryptonet.Session, error) {
	s, err := lib.NewSession(ctx, settings)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	cfg := p.config
	p.mu.Unlock()
	if cfg != nil {
		if err := s.SetConfiguration(ctx, cfg); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (p *Pool) destroy(s *cryptonet.Session) {
	if err := s.Close(); err != nil {
		p.mu.Lock()
		p.closeErr = append(p.closeErr, err)
		p.mu.Unlock()
	}
}

// Size returns the number of sessions the pool owns.
func (p *Pool) Size() int { return p.size }

// Acquire waits for an idle session. The caller must Release it.
func (p *Pool) Acquire(ctx context.Context) (*cryptonet.Session, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	r, err := p.res.Acquire(ctx)
	if err != nil {
		p.gate.Release(1)
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrClosed
		}
		return nil, err
	}
	s := r.Value()
	p.mu.Lock()
	p.leased[s] = r
	p.mu.Unlock()
	return s, nil
}

// Release returns s to the pool. Sessions released after Close are closed.
func (p *Pool) Release(s *cryptonet.Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	r, ok := p.leased[s]
	delete(p.leased, s)
	p.mu.Unlock()
	if !ok {
		return
	}
	if s.Closed() {
		r.Destroy()
	} else {
		r.Release()
	}
	p.gate.Release(1)
}

// Do runs fn with a session from the pool.
func (p *Pool) Do(ctx context.Context, fn func(*cryptonet.Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)
	return fn(s)
}

// SetConfiguration applies cfg to every session. It waits until no session is
// lent out and holds the whole pool while it runs. Sessions created later
// start from cfg too.
func (p *Pool) SetConfiguration(ctx context.Context, cfg any) error {
	if err := p.gate.Acquire(ctx, int64(p.size)); err != nil {
		return err
	}
	defer p.gate.Release(int64(p.size))

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	idle := p.res.AcquireAllIdle()
	defer func() {
		for _, r := range idle {
			r.Release()
		}
	}()
	for _, r := range idle {
		if err := r.Value().SetConfiguration(ctx, cfg); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
	return nil
}

// Close closes every session and rejects later Acquire calls. It waits for
// sessions still lent out to be released.
func (p *Pool) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.res != nil {
			p.res.Close()
		}
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.closeErr...)
}
