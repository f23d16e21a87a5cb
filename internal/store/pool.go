package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazypower/recall/internal/errs"
)

// Pool defaults.
const (
	DefaultPoolSize       = 5
	DefaultBurstFactor    = 2
	DefaultAcquireTimeout = 5 * time.Second
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool closed")

// Observer receives pool events. *metrics.Metrics implements it.
type Observer interface {
	ObserveAcquire(wait time.Duration)
	ObserveExhausted()
	ObserveDiscard()
}

// Options configures a Pool.
type Options struct {
	Size           int
	BurstFactor    int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
	Observer       Observer
}

func (o *Options) withDefaults() {
	if o.Size <= 0 {
		o.Size = DefaultPoolSize
	}
	if o.BurstFactor < 1 {
		o.BurstFactor = DefaultBurstFactor
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Size         int   `json:"size"`
	MaxOpen      int   `json:"max_open"`
	Open         int   `json:"open"`
	Idle         int   `json:"idle"`
	InUse        int   `json:"in_use"`
	BurstCreated int64 `json:"burst_created"`
	Exhausted    int64 `json:"exhausted"`
	Discarded    int64 `json:"discarded"`
}

// Pool hands out exclusive SQLite connections. Size connections are opened
// up front and kept idle; under load up to Size*BurstFactor may be open at
// once. Past that, Acquire waits up to AcquireTimeout.
type Pool struct {
	dsn     string
	opts    Options
	maxOpen int
	log     *slog.Logger

	idle chan *Conn
	done chan struct{}

	mu     sync.Mutex
	open   int // idle + leased
	closed bool

	waiting   atomic.Int32
	burst     atomic.Int64
	exhausted atomic.Int64
	discarded atomic.Int64
	topUps    sync.WaitGroup
}

// NewPool opens opts.Size connections to the database at path.
func NewPool(path string, opts Options) (*Pool, error) {
	opts.withDefaults()
	p := &Pool{
		dsn:     dsn(path),
		opts:    opts,
		maxOpen: opts.Size * opts.BurstFactor,
		log:     opts.Logger,
		idle:    make(chan *Conn, opts.Size),
		done:    make(chan struct{}),
	}

	for i := 0; i < opts.Size; i++ {
		c, err := p.newConn()
		if err != nil {
			p.Close()
			return nil, errs.Storage("open pool", err)
		}
		p.open++
		p.idle <- c
	}
	return p, nil
}

// dsn configures every transaction to take the write lock at BEGIN, so two
// writers queue on busy_timeout instead of failing to upgrade.
func dsn(path string) string {
	return path + "?_txlock=immediate"
}

func (p *Pool) newConn() (*Conn, error) {
	db, err := sql.Open("sqlite", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One driver connection per pooled Conn. Closing the *sql.DB really
	// closes the connection instead of parking it in database/sql's pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Conn{db: db}, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Acquire borrows a connection. It prefers an idle one, then opens a burst
// connection if under the cap, then waits. Waiting ends with a
// PoolExhausted error after AcquireTimeout, or with ctx's error.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case c := <-p.idle:
		return p.lease(c, 0), nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errs.Storage("acquire", ErrPoolClosed)
	}
	if p.open < p.maxOpen {
		p.open++
		isBurst := p.open > p.opts.Size
		p.mu.Unlock()

		c, err := p.newConn()
		if err != nil {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			return nil, errs.Storage("acquire", err)
		}
		if isBurst {
			p.burst.Add(1)
			p.log.Debug("pool: opened burst connection", "max_open", p.maxOpen)
		}
		return p.lease(c, 0), nil
	}
	p.mu.Unlock()

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	start := time.Now()
	timer := time.NewTimer(p.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case c := <-p.idle:
		return p.lease(c, time.Since(start)), nil
	case <-timer.C:
		p.exhausted.Add(1)
		if p.opts.Observer != nil {
			p.opts.Observer.ObserveExhausted()
		}
		p.log.Warn("pool: exhausted", "timeout", p.opts.AcquireTimeout, "max_open", p.maxOpen)
		return nil, errs.PoolExhausted("acquire", p.opts.AcquireTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errs.Storage("acquire", ErrPoolClosed)
	}
}

func (p *Pool) lease(c *Conn, wait time.Duration) *Conn {
	c.leased.Store(true)
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveAcquire(wait)
	}
	return c
}

// Release returns a connection to the pool. An uncommitted transaction is
// rolled back first. A connection that fails to reset, or that has seen a
// broken-connection error, is closed instead and the pool is topped back
// up in the background. Releasing the same Conn twice is a no-op.
func (p *Pool) Release(c *Conn) {
	if c == nil || !c.leased.CompareAndSwap(true, false) {
		return
	}

	resetErr := c.reset()

	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		c.close()
		return
	}
	if resetErr != nil || c.broken {
		p.open--
		p.topUps.Add(1)
		p.mu.Unlock()
		p.discard(c, resetErr)
		return
	}
	select {
	case p.idle <- c:
		p.mu.Unlock()
	default:
		// idle set is full: this was a burst connection
		p.open--
		p.mu.Unlock()
		c.close()
	}
}

// discard closes c and starts a top-up. The caller has already added to
// topUps while holding p.mu with the pool open.
func (p *Pool) discard(c *Conn, cause error) {
	p.discarded.Add(1)
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveDiscard()
	}
	p.log.Warn("pool: discarding connection", "err", cause, "broken", c.broken)
	c.close()

	go func() {
		defer p.topUps.Done()
		p.topUp()
	}()
}

// topUp opens one connection if the pool is below its steady-state size,
// or below the burst cap while callers are waiting.
func (p *Pool) topUp() {
	p.mu.Lock()
	want := p.open < p.opts.Size || (p.waiting.Load() > 0 && p.open < p.maxOpen)
	if p.closed || !want {
		p.mu.Unlock()
		return
	}
	p.open++
	p.mu.Unlock()

	c, err := p.newConn()
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		p.log.Error("pool: top-up failed", "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.open--
		c.close()
		return
	}
	select {
	case p.idle <- c:
	default:
		p.open--
		c.close()
	}
}

// WithConn runs fn on a borrowed connection.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(c)
}

// WithTx runs fn inside a transaction and commits when it returns nil.
// Once a connection is acquired the transaction ignores ctx cancellation,
// so a write that has started always commits or rolls back as a whole.
// fn receives the detached context it should use for its statements.
func (p *Pool) WithTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)

	ctx = context.WithoutCancel(ctx)
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin", err)
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		c.markIfBroken(err)
		return errs.Storage("commit", err)
	}
	return nil
}

// Stats returns current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	idle := len(p.idle)
	return PoolStats{
		Size:         p.opts.Size,
		MaxOpen:      p.maxOpen,
		Open:         open,
		Idle:         idle,
		InUse:        open - idle,
		BurstCreated: p.burst.Load(),
		Exhausted:    p.exhausted.Load(),
		Discarded:    p.discarded.Load(),
	}
}

// Close closes idle connections and makes leased ones close on release.
// Goroutines blocked in Acquire return ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)

	var firstErr error
	for {
		select {
		case c := <-p.idle:
			p.open--
			if err := c.close(); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		default:
		}
		break
	}
	p.mu.Unlock()

	p.topUps.Wait()
	return firstErr
}

// Conn is a connection leased from a Pool. It must not be used after
// Release.
type Conn struct {
	db     *sql.DB
	tx     *sql.Tx
	rawTx  bool
	broken bool
	leased atomic.Bool
}

// BeginTx starts a transaction that Release will roll back if the caller
// neither commits nor rolls it back.
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		c.markIfBroken(err)
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "BEGIN") {
		c.rawTx = true
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	c.markIfBroken(err)
	return res, err
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	c.markIfBroken(err)
	return rows, err
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Conn) PingContext(ctx context.Context) error {
	err := c.db.PingContext(ctx)
	c.markIfBroken(err)
	return err
}

func (c *Conn) markIfBroken(err error) {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		c.broken = true
	}
}

// reset rolls back whatever transaction the borrower left open.
func (c *Conn) reset() error {
	var err error
	if c.tx != nil {
		if rbErr := c.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = rbErr
		}
		c.tx = nil
	}
	if c.rawTx {
		c.rawTx = false
		if _, rbErr := c.db.Exec("ROLLBACK"); rbErr != nil && !strings.Contains(rbErr.Error(), "no transaction is active") {
			err = errors.Join(err, rbErr)
		}
	}
	return err
}

func (c *Conn) close() error {
	return c.db.Close()
}
