package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	// PerOptionsCapacity bounds engine processes per distinct Options.
	PerOptionsCapacity int
}

// Pool reuses engine processes. setoption is applied once per process, so
// processes are grouped by their Options.
type Pool struct {
	binaryPath string
	capacity   int

	mu     sync.Mutex
	groups map[string]*group
	owner  map[*Session]*group
}

// group holds the processes of one Options value. A token in slots is one
// live process; idle processes wait in idle.
type group struct {
	opt   Options
	slots chan struct{}
	idle  chan *Session
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("uci: engine binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("uci: engine binary: %w", err)
	}
	capacity := cfg.PerOptionsCapacity
	if capacity <= 0 {
		capacity = min(max(runtime.NumCPU(), 2), 4)
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		groups:     make(map[string]*group),
		owner:      make(map[*Session]*group),
	}, nil
}

func (p *Pool) groupFor(opt Options) *group {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[opt.key()]
	if !ok {
		g = &group{opt: opt, slots: make(chan struct{}, p.capacity), idle: make(chan *Session, p.capacity)}
		p.groups[opt.key()] = g
	}
	return g
}

// Acquire hands out an idle process for opt, starts one while below capacity,
// or waits for a Release.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	g := p.groupFor(opt)
	for {
		select {
		case s := <-g.idle:
			if p.revive(ctx, g, s) {
				return s, nil
			}
			continue
		default:
		}

		select {
		case s := <-g.idle:
			if p.revive(ctx, g, s) {
				return s, nil
			}
		case g.slots <- struct{}{}:
			s, err := NewSession(ctx, p.binaryPath, opt)
			if err != nil {
				<-g.slots
				return nil, err
			}
			p.own(s, g)
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// revive checks an idle process before reuse and drops it when it stopped answering.
func (p *Pool) revive(ctx context.Context, g *group, s *Session) bool {
	if err := s.Ready(ctx); err != nil {
		_ = s.Close()
		<-g.slots
		return false
	}
	p.own(s, g)
	return true
}

func (p *Pool) own(s *Session, g *group) {
	p.mu.Lock()
	p.owner[s] = g
	p.mu.Unlock()
}

// Release returns a process. A non-nil err discards it.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	g, ok := p.owner[s]
	delete(p.owner, s)
	p.mu.Unlock()
	if !ok {
		_ = s.Close()
		return
	}
	if err == nil {
		select {
		case g.idle <- s:
			return
		default:
		}
	}
	_ = s.Close()
	<-g.slots
}

// Close stops idle processes. Sessions still checked out are closed on Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	groups := make([]*group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.mu.Unlock()

	var errs []error
	for _, g := range groups {
		for {
			select {
			case s := <-g.idle:
				errs = append(errs, s.Close())
				<-g.slots
				continue
			default:
			}
			break
		}
	}
	return errors.Join(errs...)
}
