package mysql

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// PoolOptions configures a Pool (spec §4.H).
type PoolOptions struct {
	Size           int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	HealthCheckTTL time.Duration
	ConnectFactory func(ctx context.Context) (*Connection, error)
}

// pooledConn tracks a Connection's idle-side bookkeeping; creation time
// lives on the Connection itself (it doesn't reset each time the
// Connection comes back to idle).
type pooledConn struct {
	conn      *Connection
	idleSince time.Time
}

// Pool is a bounded set of Connections handed out to callers and
// returned when done (spec §4.H). Waiters queue strictly in arrival
// order — a container/list FIFO, not sync.Cond.Broadcast, which makes
// no ordering guarantee among waiters it wakes — so no caller starves
// behind a stream of newer arrivals (spec invariant: "no starvation").
type Pool struct {
	opts PoolOptions

	mu      sync.Mutex
	idle    []*pooledConn
	numOpen int
	waiters *list.List // of *poolWaiter
	closed  bool

	closeCh chan struct{}
}

type poolWaiter struct {
	ch chan *pooledConn
}

// NewPool creates a Pool and starts its background idle/lifetime
// eviction sweep.
func NewPool(opts PoolOptions) *Pool {
	if opts.Size <= 0 {
		opts.Size = 10
	}
	if opts.HealthCheckTTL <= 0 {
		opts.HealthCheckTTL = 30 * time.Second
	}
	p := &Pool{
		opts:    opts,
		waiters: list.New(),
		closeCh: make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

// Get returns a healthy Connection, waiting in FIFO order behind other
// callers if the pool is at capacity and all Connections are checked
// out (spec §4.H). ctx cancellation while queued returns
// ErrWaiterTimedOut rather than blocking forever.
func (p *Pool) Get(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &PoolError{Kind: PoolErrorClosed, Cause: ErrPoolClosed}
	}

	if pc := p.takeIdleLocked(); pc != nil {
		p.mu.Unlock()
		return p.readyOrReplace(ctx, pc)
	}

	if p.numOpen < p.opts.Size {
		p.numOpen++
		p.mu.Unlock()
		conn, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, err
		}
		return conn, nil
	}

	w := &poolWaiter{ch: make(chan *pooledConn, 1)}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case pc := <-w.ch:
		return p.readyOrReplace(ctx, pc)
	case <-ctx.Done():
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		select {
		case pc := <-w.ch:
			// Lost the race with a concurrent Release; don't strand
			// the Connection it handed us.
			p.Put(pc.conn)
		default:
		}
		return nil, &PoolError{Kind: PoolErrorWaiterTimedOut, Cause: ErrWaiterTimedOut}
	case <-p.closeCh:
		return nil, &PoolError{Kind: PoolErrorClosed, Cause: ErrPoolClosed}
	}
}

func (p *Pool) dial(ctx context.Context) (*Connection, error) {
	conn, err := p.opts.ConnectFactory(ctx)
	if err != nil {
		slog.Warn("mysql: pool dial failed", "err", err)
		return nil, err
	}
	return conn, nil
}

// readyOrReplace drains a Connection that was cancelled mid-query, or
// every Connection when ResetOnRelease is configured, before handing
// it back out (spec: MODULE ADDITIONS, drain-then-reuse) and
// transparently dials a replacement if the drain fails.
func (p *Pool) readyOrReplace(ctx context.Context, pc *pooledConn) (*Connection, error) {
	if pc.conn.WasCancelled() || pc.conn.params.ResetOnRelease {
		if err := pc.conn.ResetSession(ctx); err != nil {
			slog.Warn("mysql: pool drain failed, replacing connection", "conn", pc.conn.id, "err", err)
			pc.conn.Close()
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return p.Get(ctx)
		}
	}
	return pc.conn, nil
}

// takeIdleLocked pops the newest idle entry (Put appends to the tail),
// so a connection that just went idle is reused before one that's been
// sitting idle longer (spec §4.H get() step 2).
func (p *Pool) takeIdleLocked() *pooledConn {
	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		pc := p.idle[last]
		p.idle = p.idle[:last]
		if p.opts.MaxLifetime > 0 && time.Since(pc.conn.createdAt) > p.opts.MaxLifetime {
			p.numOpen--
			pc.conn.Close()
			continue
		}
		return pc
	}
	return nil
}

// Put returns conn to the pool, handing it directly to the
// longest-waiting queued caller if there is one (spec §4.H: FIFO
// hand-off, no round trip through the idle list when someone's already
// waiting).
func (p *Pool) Put(conn *Connection) {
	pc := &pooledConn{conn: conn, idleSince: time.Now()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}

	if front := p.waiters.Front(); front != nil {
		p.waiters.Remove(front)
		w := front.Value.(*poolWaiter)
		p.mu.Unlock()
		w.ch <- pc
		return
	}

	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// Close closes every idle Connection, rejects queued waiters, and
// prevents further Get calls from succeeding (spec §4.H).
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	close(p.closeCh)
	p.mu.Unlock()

	for _, pc := range idle {
		pc.conn.Close()
	}
	return nil
}

// evictLoop periodically sweeps idle Connections past IdleTimeout or
// MaxLifetime (spec §4.H).
func (p *Pool) evictLoop() {
	if p.opts.IdleTimeout <= 0 && p.opts.MaxLifetime <= 0 {
		return
	}
	interval := p.opts.IdleTimeout
	if interval <= 0 || (p.opts.MaxLifetime > 0 && p.opts.MaxLifetime < interval) {
		interval = p.opts.MaxLifetime
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.closeCh:
			return
		}
	}
}

func (p *Pool) sweepIdle() {
	p.mu.Lock()
	kept := p.idle[:0]
	var toClose []*pooledConn
	now := time.Now()
	for _, pc := range p.idle {
		expired := (p.opts.IdleTimeout > 0 && now.Sub(pc.idleSince) > p.opts.IdleTimeout) ||
			(p.opts.MaxLifetime > 0 && now.Sub(pc.conn.createdAt) > p.opts.MaxLifetime)
		if expired {
			p.numOpen--
			toClose = append(toClose, pc)
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	if len(toClose) > 0 {
		slog.Info("mysql: evicted idle connections", "count", len(toClose))
	}
	for _, pc := range toClose {
		pc.conn.Close()
	}
}

// PoolStats is a point-in-time snapshot of Pool occupancy, for feeding
// external metrics collectors (spec: DOMAIN STACK, poolmetrics).
type PoolStats struct {
	Open    int
	Idle    int
	Waiters int
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Open: p.numOpen, Idle: len(p.idle), Waiters: p.waiters.Len()}
}

// HealthCheck pings every currently idle Connection and evicts any
// that fail (spec §4.H).
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	snapshot := append([]*pooledConn(nil), p.idle...)
	p.mu.Unlock()

	var dead []*pooledConn
	for _, pc := range snapshot {
		if err := pc.conn.Ping(ctx); err != nil {
			slog.Warn("mysql: pool health check failed, evicting connection", "err", err)
			dead = append(dead, pc)
		}
	}
	if len(dead) == 0 {
		return
	}

	p.mu.Lock()
	kept := p.idle[:0]
	for _, pc := range p.idle {
		isDead := false
		for _, d := range dead {
			if d == pc {
				isDead = true
				break
			}
		}
		if isDead {
			p.numOpen--
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, pc := range dead {
		pc.conn.Close()
	}
}
