package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnavailable is returned when no configured endpoint responds.
var ErrUnavailable = errors.New("no ledger endpoint available")

// Conn manages the binding to one of an ordered list of redundant
// endpoints. Binding happens on first use or through Open.
type Conn struct {
	endpoints     []string
	dial          Dialer
	healthTimeout time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	current Chain
	index   int
}

func NewConn(endpoints []string, dial Dialer, healthTimeout time.Duration, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		endpoints:     endpoints,
		dial:          dial,
		healthTimeout: healthTimeout,
		logger:        logger.With("component", "ledger"),
		index:         -1,
	}
}

// Open binds to the first responding endpoint.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return nil
	}
	return c.bind(ctx, 0)
}

// Chain returns the bound client, binding first if needed.
func (c *Conn) Chain(ctx context.Context) (Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		if err := c.bind(ctx, 0); err != nil {
			return nil, err
		}
	}
	return c.current, nil
}

// Rebind drops the current binding and checks the endpoints again, starting
// with the one after it. The previously bound endpoint is tried last.
func (c *Conn) Rebind(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := c.index + 1
	c.release()
	return c.bind(ctx, start)
}

// Endpoint returns the bound endpoint, or "" when unbound.
func (c *Conn) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.endpoints[c.index]
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return nil
}

func (c *Conn) release() {
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
	c.index = -1
}

func (c *Conn) bind(ctx context.Context, start int) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("%w: no endpoints configured", ErrUnavailable)
	}

	var errs []error
	for i := range c.endpoints {
		idx := (start + i) % len(c.endpoints)
		endpoint := c.endpoints[idx]

		ch, err := c.check(ctx, endpoint)
		if err != nil {
			c.logger.Warn("ledger endpoint unreachable", "endpoint", endpoint, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}

		c.current, c.index = ch, idx
		c.logger.Info("ledger endpoint bound", "endpoint", endpoint)
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func (c *Conn) check(ctx context.Context, endpoint string) (Chain, error) {
	if c.healthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.healthTimeout)
		defer cancel()
	}

	ch, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}
	if _, err := ch.BlockNumber(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("probing: %w", err)
	}
	return ch, nil
}
