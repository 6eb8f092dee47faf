package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/servicelab/svc-acceptor/client"
	"github.com/servicelab/svc-acceptor/types"
)

// ModuleFunc is the entry point contract for a test module. It receives the
// service run's execution context as its sole argument. A nil return means
// the module passed; returning a *types.SkipError or *types.AssertionError
// maps to Skipped/Failed; any other error maps to Error.
type ModuleFunc func(*Context) error

// Skip returns the explicit skip signal with the supplied reason.
func Skip(reason string) error {
	return types.NewSkipError(reason)
}

// Skipf returns the explicit skip signal with a formatted reason.
func Skipf(format string, args ...any) error {
	return types.NewSkipError(fmt.Sprintf(format, args...))
}

// Context is the per-service-run state carrier handed to every module in
// that run. It owns exactly one request client plus an open-ended mapping of
// named values set by one module and read by a later module. A Context is
// created once per service run and never shared across services, but a
// module abandoned at its wall-clock ceiling keeps its reference and may
// still touch the Context while the next module runs, so the mutable state
// is guarded by a lock.
type Context struct {
	service types.ServiceDescriptor
	client  *client.Client
	log     log.Logger

	mu     sync.RWMutex
	values map[string]any
	ctx    context.Context
}

// NewContext creates a fresh execution context for one service run.
func NewContext(service types.ServiceDescriptor, c *client.Client, logger log.Logger) *Context {
	if logger == nil {
		logger = log.New()
	}
	return &Context{
		service: service,
		client:  c,
		values:  make(map[string]any),
		ctx:     context.Background(),
		log:     logger,
	}
}

// Bind attaches the context.Context governing the current module invocation.
// The orchestrator calls this before each module so requests issued through
// the convenience methods observe the module's wall-clock ceiling.
func (c *Context) Bind(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Ctx returns the context.Context of the current module invocation.
func (c *Context) Ctx() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Service returns the descriptor of the service under test.
func (c *Context) Service() types.ServiceDescriptor {
	return c.service
}

// Client returns the request client owned by this run.
func (c *Context) Client() *client.Client {
	return c.client
}

// Log returns the logger scoped to this service run.
func (c *Context) Log() log.Logger {
	return c.log
}

// Set stores a named value for later modules in the same run.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns a previously stored value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the stored value rendered as a string, or "" when the
// key is absent.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MustGet returns the stored value or an error naming the missing key.
func (c *Context) MustGet(key string) (any, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("context value %q not set by any earlier module", key)
	}
	return v, nil
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GET issues a GET request through the run's client using the current
// module's context.
func (c *Context) GET(path string, opts ...client.RequestOption) (*client.Response, error) {
	return c.client.Get(c.Ctx(), path, opts...)
}

// POST issues a POST request through the run's client.
func (c *Context) POST(path string, opts ...client.RequestOption) (*client.Response, error) {
	return c.client.Post(c.Ctx(), path, opts...)
}

// PUT issues a PUT request through the run's client.
func (c *Context) PUT(path string, opts ...client.RequestOption) (*client.Response, error) {
	return c.client.Put(c.Ctx(), path, opts...)
}

// DELETE issues a DELETE request through the run's client.
func (c *Context) DELETE(path string, opts ...client.RequestOption) (*client.Response, error) {
	return c.client.Delete(c.Ctx(), path, opts...)
}

// PATCH issues a PATCH request through the run's client.
func (c *Context) PATCH(path string, opts ...client.RequestOption) (*client.Response, error) {
	return c.client.Patch(c.Ctx(), path, opts...)
}
