package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/loamdb/loam"
)

// PoolConfig sizes a connection pool and bounds checkout waiting.
type PoolConfig struct {
	// MaxOpen is the pool capacity. At most MaxOpen operations run
	// concurrently; the rest wait for a checkout.
	MaxOpen int
	// MaxIdle is the number of idle connections kept open.
	MaxIdle int
	// ConnMaxLifetime recycles connections older than this.
	ConnMaxLifetime time.Duration
	// CheckoutTimeout bounds the wait for a connection when the pool is
	// exhausted. Zero means wait until the caller's context expires.
	CheckoutTimeout time.Duration
	// RetryCheckout is the number of additional checkout attempts after
	// a transient pool timeout. Statement execution is never retried.
	RetryCheckout int
}

// DefaultPoolConfig is the pool sizing used when a zero config is given.
var DefaultPoolConfig = PoolConfig{
	MaxOpen:         8,
	MaxIdle:         4,
	ConnMaxLifetime: 30 * time.Minute,
	CheckoutTimeout: 5 * time.Second,
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxOpen <= 0 {
		c.MaxOpen = DefaultPoolConfig.MaxOpen
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = DefaultPoolConfig.MaxIdle
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = DefaultPoolConfig.ConnMaxLifetime
	}
	if c.CheckoutTimeout == 0 {
		c.CheckoutTimeout = DefaultPoolConfig.CheckoutTimeout
	}
	return c
}

// Pool owns the bounded set of physical connections for one backend.
// Checkout capacity is enforced with a weighted semaphore in front of the
// database/sql pool, so waiters queue fairly and a checkout can fail fast
// with ErrPoolTimeout instead of piling up behind the driver.
type Pool struct {
	drv *Driver
	sem *semaphore.Weighted
	cfg PoolConfig
}

// NewPool wraps the driver's connection pool with bounded checkout.
func NewPool(drv *Driver, cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	db := drv.DB()
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Pool{
		drv: drv,
		sem: semaphore.NewWeighted(int64(cfg.MaxOpen)),
		cfg: cfg,
	}
}

// Driver returns the underlying driver.
func (p *Pool) Driver() *Driver { return p.drv }

// Dialect returns the backend dialect.
func (p *Pool) Dialect() string { return p.drv.Dialect() }

// Close drains the pool: it waits for every checked-out connection to be
// released, then closes the underlying database handle.
func (p *Pool) Close(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, int64(p.cfg.MaxOpen)); err != nil {
		return fmt.Errorf("dialect/sql: drain pool: %w", err)
	}
	// Keep the semaphore held; the pool is shut down.
	return p.drv.Close()
}

// acquire claims one unit of pool capacity, waiting up to the configured
// checkout timeout with the configured number of retries. The returned
// release function is safe to call exactly once on any exit path.
func (p *Pool) acquire(ctx context.Context) (release func(), err error) {
	attempts := 1 + p.cfg.RetryCheckout
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			// Cancellation before checkout has no side effect.
			return nil, err
		}
		err = p.tryAcquire(ctx)
		if err == nil {
			return func() { p.sem.Release(1) }, nil
		}
		if !errors.Is(err, loam.ErrPoolTimeout) {
			return nil, err
		}
	}
	return nil, err
}

func (p *Pool) tryAcquire(ctx context.Context) error {
	wait := ctx
	if p.cfg.CheckoutTimeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, p.cfg.CheckoutTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(wait, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return loam.ErrPoolTimeout
	}
	return nil
}

// conn checks out one physical connection together with its capacity
// unit. The returned cleanup releases both and must run on every path.
func (p *Pool) conn(ctx context.Context) (*sql.Conn, func() error, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	c, err := p.drv.DB().Conn(ctx)
	if err != nil {
		release()
		return nil, nil, classifyError(p.Dialect(), err)
	}
	cleanup := func() error {
		err := c.Close()
		release()
		return err
	}
	return c, cleanup, nil
}
