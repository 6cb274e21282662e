package sandbox

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

//go:embed prelude.js
var preludeSource string

var preludeProgram = goja.MustCompile("prelude.js", preludeSource, true)

// vmContext is a goja runtime prepared for one invocation. It is never
// handed out twice.
type vmContext struct {
	vm      *goja.Runtime
	install goja.Callable // prelude factory, called with the bridge object
	parse   goja.Callable // JSON.parse captured before user code can replace it
}

func newVMContext(cfg Config) (*vmContext, error) {
	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	factory, err := vm.RunProgram(preludeProgram)
	if err != nil {
		return nil, fmt.Errorf("load prelude: %w", err)
	}
	install, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, fmt.Errorf("load prelude: factory is not callable")
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("load prelude: JSON.parse is not callable")
	}
	return &vmContext{vm: vm, install: install, parse: parse}, nil
}

// Pool keeps pre-warmed runtimes so invocations skip runtime setup
type Pool struct {
	config   Config
	runtimes chan *vmContext
	size     int
	mu       sync.RWMutex
	closed   bool
	refills  sync.WaitGroup

	created atomic.Int64
	misses  atomic.Int64
}

// NewPool creates a pool and warms it to size
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultConfig().PoolSize
	}

	pool := &Pool{
		config:   config,
		runtimes: make(chan *vmContext, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		rt, err := pool.create()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.runtimes <- rt
	}

	return pool, nil
}

// Acquire takes a warm runtime, or builds one when the pool is empty.
// It never waits for another invocation to finish.
func (p *Pool) Acquire(ctx context.Context) (*vmContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrHostClosed
	}

	select {
	case rt, ok := <-p.runtimes:
		if ok {
			return rt, nil
		}
		return nil, ErrHostClosed
	default:
		p.misses.Add(1)
		return p.create()
	}
}

// Release discards a used runtime and refills the pool in the background
func (p *Pool) Release(rt *vmContext) {
	if rt == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	p.refills.Add(1)
	go func() {
		defer p.refills.Done()
		fresh, err := p.create()
		if err != nil {
			return
		}

		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.closed {
			return
		}
		select {
		case p.runtimes <- fresh:
		default:
			// Pool already full
		}
	}()
}

// Close drops all warm runtimes; later Acquire calls fail
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.runtimes)
	p.mu.Unlock()

	p.refills.Wait()
	for range p.runtimes {
	}
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.runtimes),
		"created":   p.created.Load(),
		"misses":    p.misses.Load(),
		"closed":    p.closed,
	}
}

func (p *Pool) create() (*vmContext, error) {
	rt, err := newVMContext(p.config)
	if err != nil {
		return nil, err
	}
	p.created.Add(1)
	return rt, nil
}
