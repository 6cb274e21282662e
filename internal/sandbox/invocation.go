package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// invocation is the per-call state around one runtime. The runtime is only
// touched by the goroutine running the invocation; host goroutines hand
// work back through post.
type invocation struct {
	id         string
	rt         *vmContext
	vm         *goja.Runtime
	ctx        context.Context
	handles    *handleTable
	fetcher    Fetcher
	logger     *zap.Logger
	maxConsole int

	mu     sync.Mutex
	jobs   []func() error
	closed bool
	wake   chan struct{}

	console      []LogEntry
	consoleBytes int
	dropped      int

	cancelTimeout context.CancelFunc
	cancelRun     context.CancelCauseFunc
	stopInterrupt func() bool
	memoryDone    chan struct{}
	inflight      sync.WaitGroup // host goroutines started by bridge calls
	teardownOnce  sync.Once
}

type invocationParams struct {
	id         string
	timeout    time.Duration
	maxMemory  int64
	active     func() int64
	maxConsole int
	fetcher    Fetcher
	logger     *zap.Logger
}

func newInvocation(parent context.Context, rt *vmContext, p invocationParams) *invocation {
	inv := &invocation{
		id:         p.id,
		rt:         rt,
		vm:         rt.vm,
		handles:    newHandleTable(p.id),
		fetcher:    p.fetcher,
		logger:     p.logger,
		maxConsole: p.maxConsole,
		wake:       make(chan struct{}, 1),
		memoryDone: make(chan struct{}),
	}

	timed, cancelTimeout := context.WithTimeoutCause(parent, p.timeout, &TimeoutError{Timeout: p.timeout})
	ctx, cancelRun := context.WithCancelCause(timed)
	inv.ctx, inv.cancelTimeout, inv.cancelRun = ctx, cancelTimeout, cancelRun
	inv.stopInterrupt = context.AfterFunc(ctx, func() {
		inv.vm.Interrupt(context.Cause(ctx))
	})

	go func() {
		defer close(inv.memoryDone)
		watchMemory(ctx, p.maxMemory, memoryPollInterval, p.active, cancelRun)
	}()
	return inv
}

// execute loads the module, calls its export with args and waits for the
// result to settle.
func (inv *invocation) execute(name string, prg *goja.Program, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, inv.classify(panicError(r))
		}
	}()

	if err := inv.installBridge(); err != nil {
		return nil, inv.classify(err)
	}
	entry, err := entryPoint(inv.vm, name, prg)
	if err != nil {
		return nil, inv.classify(err)
	}
	in, err := copyIn(inv.rt, args)
	if err != nil {
		return nil, inv.classify(err)
	}

	ret, err := entry(goja.Undefined(), in...)
	if err != nil {
		return nil, inv.classify(err)
	}
	settled, err := inv.await(ret)
	if err != nil {
		return nil, err
	}
	value, err = copyOut(inv.ctx, inv.vm, settled)
	if err != nil {
		return nil, inv.classify(err)
	}
	return value, nil
}

// post queues job to run on the invocation goroutine. It reports false
// once the invocation is closed; the job is dropped.
func (inv *invocation) post(job func() error) bool {
	inv.mu.Lock()
	if inv.closed {
		inv.mu.Unlock()
		return false
	}
	inv.jobs = append(inv.jobs, job)
	inv.mu.Unlock()

	select {
	case inv.wake <- struct{}{}:
	default:
	}
	return true
}

// drain runs queued jobs until the queue is empty. A job error is fatal to
// the invocation.
func (inv *invocation) drain() error {
	for {
		inv.mu.Lock()
		jobs := inv.jobs
		inv.jobs = nil
		inv.mu.Unlock()

		if len(jobs) == 0 {
			return nil
		}
		for _, job := range jobs {
			if err := job(); err != nil {
				return inv.classify(err)
			}
		}
	}
}

// await pumps the job queue until v settles. Non-promise values are
// returned as they are.
func (inv *invocation) await(v goja.Value) (goja.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v, nil
	}
	promise, ok := obj.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}

	for {
		if err := inv.drain(); err != nil {
			return nil, err
		}
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, inv.thrown(promise.Result(), "")
		}

		select {
		case <-inv.wake:
		case <-inv.ctx.Done():
			return nil, context.Cause(inv.ctx)
		}
	}
}

// classify maps an error out of the runtime onto the package's error types.
func (inv *invocation) classify(err error) error {
	var (
		interrupted *goja.InterruptedError
		exception   *goja.Exception
		compileErr  *CompileError
		coded       *codedError
	)
	switch {
	case errors.As(err, &interrupted):
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		if cause := context.Cause(inv.ctx); cause != nil {
			return cause
		}
		return &RuntimeError{Name: "InterruptedError", Message: interrupted.Error()}
	case errors.As(err, &exception):
		return inv.thrown(exception.Value(), exception.String())
	case errors.As(err, &compileErr), errors.As(err, &coded):
		return err
	case inv.ctx.Err() != nil:
		return context.Cause(inv.ctx)
	default:
		return &RuntimeError{Message: err.Error()}
	}
}

// thrown describes a thrown or rejected value. Reading it may run user
// getters, so any failure falls back to a generic message.
func (inv *invocation) thrown(v goja.Value, stack string) (re *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			re = &RuntimeError{Message: "unprintable thrown value", Stack: stack}
		}
	}()

	re = &RuntimeError{Stack: stack}
	if v == nil || goja.IsUndefined(v) {
		re.Message = "undefined"
		return re
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		re.Message = v.String()
		return re
	}

	if obj.ClassName() == "Error" {
		re.Name = stringProp(obj, "name")
	}
	if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
		re.Message = msg.String()
	} else {
		re.Message = v.String()
	}
	if s := stringProp(obj, "stack"); s != "" {
		re.Stack = s
	}
	return re
}

// callbackFailed reports an exception thrown by a timer callback as a
// console error. Interrupts stay fatal.
func (inv *invocation) callbackFailed(err error) error {
	var exception *goja.Exception
	if !errors.As(err, &exception) {
		return err
	}
	re := inv.thrown(exception.Value(), exception.String())
	msg := "Uncaught " + re.Error()
	inv.appendConsole(LogEntry{Level: "error", Message: msg, Args: quoteArgs(msg), Time: time.Now()})
	return nil
}

// close stops accepting jobs and drops anything still queued.
func (inv *invocation) close() {
	inv.mu.Lock()
	inv.closed = true
	inv.jobs = nil
	inv.mu.Unlock()
}

// teardown releases everything the invocation holds. It is safe to call
// more than once.
func (inv *invocation) teardown() {
	inv.teardownOnce.Do(func() {
		inv.close()
		inv.stopInterrupt()
		inv.handles.revokeAll()
		inv.cancelRun(nil)
		inv.cancelTimeout()
		inv.inflight.Wait()
		<-inv.memoryDone
	})
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
