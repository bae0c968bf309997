package store

import (
	"context"
	"sync"

	"github.com/kubusdb/kubus/pkg/constants"
)

// Connector hands out a single Handle for the lifetime of the process.
// The first successful Connect wins; later calls return the same Handle
// and ignore their config.
type Connector struct {
	mu     sync.Mutex
	handle *Handle
}

// Connect returns the existing handle, or opens one from c. With no handle
// and a nil config it reports constants.ErrNotConfigured.
func (c *Connector) Connect(ctx context.Context, cfg *Config) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		return c.handle, nil
	}
	if cfg == nil {
		return nil, constants.ErrNotConfigured
	}

	h, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.handle = h

	return h, nil
}

// Handle returns the connected handle or constants.ErrNotConfigured.
func (c *Connector) Handle() (*Handle, error) {
	return c.Connect(context.Background(), nil)
}

// Close closes the handle, after which Connect opens a fresh one.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return nil
	}
	err := c.handle.Close()
	c.handle = nil
	return err
}
