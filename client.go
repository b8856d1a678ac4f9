package spanstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Load and sweep defaults, matching the original harness.
const (
	DefaultLoadCount    = 2001
	DefaultLoadSpacing  = 2000 * time.Second
	DefaultSweepCount   = 3000
	DefaultSweepStep    = 1000 * time.Second
	DefaultSweepWindow  = 1000 * time.Second
	DefaultAccountEvery = 2
)

// Client drives a store the way the harness does: bulk loads, range
// query sweeps, delete-all and observers tracked by reference.
type Client struct {
	store   *Store
	session *Session
	config  Config

	mu     sync.Mutex
	closed bool
}

// New opens the configured store and returns a client for it.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	session := NewSession()
	session.debug = store.debug

	return &Client{
		store:   store,
		session: session,
		config:  cfg,
	}, nil
}

// Store returns the underlying store.
func (c *Client) Store() *Store {
	return c.store
}

// LoadData creates p.Count records with started_at = base + i*spacing.
// Every record carries an embedded note; every AccountEvery-th record gets
// account_id = LoadAccountID.
func (c *Client) LoadData(ctx context.Context, p LoadParams) (*LoadResult, error) {
	if p.Count <= 0 {
		p.Count = DefaultLoadCount
	}
	if p.Spacing == 0 {
		p.Spacing = DefaultLoadSpacing
	}
	if p.Base.IsZero() {
		p.Base = time.Now()
	}

	records := make([]Record, p.Count)
	for i := range records {
		started := p.Base.Add(time.Duration(i) * p.Spacing)
		opts := []RecordOption{
			WithTitle(fmt.Sprintf("Record %d", i)),
			WithEmbedded(Embedded{
				Notes:  fmt.Sprintf("loaded %d of %d", i+1, p.Count),
				Field1: int64(i),
			}),
		}
		if p.AccountEvery > 0 && i%p.AccountEvery == 0 {
			opts = append(opts, WithAccountID(LoadAccountID))
		}
		records[i] = NewRecord(started, started.Add(p.Duration), opts...)
	}

	start := time.Now()
	result := &LoadResult{}
	var err error
	if p.Batch {
		result.Inserted, err = c.store.InsertBatch(ctx, records)
		if result.Inserted > 0 {
			result.Transactions = 1
		}
	} else {
		result.Inserted, err = c.store.InsertMany(ctx, records)
		result.Transactions = result.Inserted
	}
	result.Elapsed = time.Since(start)
	return result, err
}

// RunQueries runs p.Count range queries and records the first match of each.
// Zero fields take the harness defaults: 3000 containment queries with a
// 1000s window, stepping 1000s from now.
func (c *Client) RunQueries(ctx context.Context, p SweepParams) (*SweepResult, error) {
	if p.Count <= 0 {
		p.Count = DefaultSweepCount
	}
	if p.Step == 0 {
		p.Step = DefaultSweepStep
	}
	if p.Window == 0 {
		p.Window = DefaultSweepWindow
	}
	if p.Mode == ModeAll {
		p.Mode = ModeContainment
	}
	if p.Base.IsZero() {
		p.Base = time.Now()
	}

	start := time.Now()
	result := &SweepResult{}
	for i := 1; i <= p.Count; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		lower := p.Base.Add(time.Duration(i) * p.Step)
		q := Query{Mode: p.Mode, Lower: lower, Upper: lower.Add(p.Window), Filters: p.Filters}

		res, err := c.store.Where(q)
		if err != nil {
			return result, fmt.Errorf("query %d: %w", i, err)
		}
		first, ok, err := res.First(ctx)
		if err != nil {
			return result, fmt.Errorf("query %d: %w", i, err)
		}

		result.Queries++
		if !ok {
			result.Misses++
			continue
		}
		result.Hits++
		if result.First == nil {
			result.First = first
		}
		n, err := res.Count(ctx)
		if err != nil {
			return result, fmt.Errorf("query %d: %w", i, err)
		}
		result.Matched += n
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// DeleteAll removes every record in a single transaction.
func (c *Client) DeleteAll(ctx context.Context) (int, error) {
	return c.store.DeleteAll(ctx)
}

// StartObserving subscribes to q and returns a session reference (O1, O2, ...).
// Events are collected in the background; read them with Changes.
func (c *Client) StartObserving(ctx context.Context, q Query, keyPaths ...string) (string, error) {
	sub, err := c.store.Subscribe(ctx, q, keyPaths...)
	if err != nil {
		return "", err
	}
	return c.session.Track(sub), nil
}

// StopObserving unsubscribes the referenced observer.
func (c *Client) StopObserving(ref string) error {
	o, ok := c.session.Remove(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, ref)
	}
	o.Stop()
	return nil
}

// Changes returns the events the referenced observer collected since the
// previous call.
func (c *Client) Changes(ref string) ([]Change, error) {
	o, ok := c.session.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, ref)
	}
	return o.Drain(), nil
}

// Observers describes every observer in the session.
func (c *Client) Observers() []ObserverInfo {
	refs := c.session.Refs()
	infos := make([]ObserverInfo, 0, len(refs))
	for _, ref := range refs {
		if o, ok := c.session.Resolve(ref); ok {
			infos = append(infos, o.Info())
		}
	}
	return infos
}

// Stats returns store statistics.
func (c *Client) Stats(ctx context.Context) (*StoreStats, error) {
	return c.store.Stats(ctx)
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		StoreOK: true,
	}

	if _, err := c.store.Stats(ctx); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}

// Close stops all observers and closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.session.Clear()
	return c.store.Close()
}
