// Package bus provides the dock command bus: producers enqueue layout
// mutations from any goroutine, and a single consumer drains them one at a
// time through a host-supplied Executor.
//
// The bus never runs goroutines of its own. Queue structure is guarded by one
// mutex which is released before the executor and listeners run, so both may
// call back into the bus (Enqueue, PendingCount, even ProcessAll).
package bus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dayuer/dockbus/internal/command"
)

// trimThreshold is the minimum consumed prefix before the backing slice is
// compacted.
const trimThreshold = 64

// ErrExecutorPanic wraps a value recovered from a panicking executor.
var ErrExecutorPanic = errors.New("executor panicked")

// Executor performs the actual mutation for one command. A returned error is
// reported to listeners and callers as a Failed result.
type Executor func(cmd command.Command, ctx command.Context) (command.Result, error)

// Listener observes every dispatched command together with its result.
type Listener func(cmd command.Command, res command.Result)

// Stats holds lifetime counters of a bus.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Coalesced int64 `json:"coalesced"`
	Executed  int64 `json:"executed"`
	Failed    int64 `json:"failed"`
	Canceled  int64 `json:"canceled"`
	Pending   int   `json:"pending"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithCoalescing turns same-kind coalescing on or off (default on).
func WithCoalescing(enabled bool) Option {
	return func(b *Bus) { b.coalesce = enabled }
}

// WithCoalescePolicy limits coalescing to kinds for which policy returns true.
// A nil policy coalesces every kind.
func WithCoalescePolicy(policy func(command.Kind) bool) Option {
	return func(b *Bus) { b.policy = policy }
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(b *Bus) {
		if l != nil {
			b.listeners = append(b.listeners, &listenerEntry{fn: l})
		}
	}
}

type listenerEntry struct {
	fn Listener
}

// Bus queues commands and drains them sequentially.
type Bus struct {
	exec Executor
	ctx  atomic.Pointer[command.Context]

	coalesce bool
	policy   func(command.Kind) bool

	mu    sync.Mutex
	items []command.Command
	head  int

	lmu       sync.RWMutex
	listeners []*listenerEntry

	enqueued  atomic.Int64
	coalesced atomic.Int64
	executed  atomic.Int64
	failed    atomic.Int64
	canceled  atomic.Int64
}

// New creates a bus bound to exec, starting with ctx as its current context.
func New(exec Executor, ctx command.Context, opts ...Option) (*Bus, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", command.ErrInvalidArgument)
	}
	if !ctx.Valid() {
		return nil, fmt.Errorf("%w: context is required", command.ErrInvalidArgument)
	}
	b := &Bus{exec: exec, coalesce: true}
	b.ctx.Store(&ctx)
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// SetContext replaces the context used for every command dequeued from now
// on. A command already executing keeps the context it started with.
func (b *Bus) SetContext(ctx command.Context) error {
	if !ctx.Valid() {
		return fmt.Errorf("%w: context is required", command.ErrInvalidArgument)
	}
	b.ctx.Store(&ctx)
	return nil
}

// Context returns the current context.
func (b *Bus) Context() command.Context {
	return *b.ctx.Load()
}

// Subscribe registers l on the execution-notification channel and returns a
// function that removes it again.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	entry := &listenerEntry{fn: l}
	b.lmu.Lock()
	b.listeners = append(b.listeners, entry)
	b.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.lmu.Lock()
			defer b.lmu.Unlock()
			for i, e := range b.listeners {
				if e == entry {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Enqueue appends cmd to the pending queue. With coalescing on, the most
// recent pending command of the same kind is dropped first, so a burst of
// splitter drags leaves only the latest one queued.
func (b *Bus) Enqueue(cmd command.Command) error {
	if command.IsNil(cmd) {
		return fmt.Errorf("%w: command is required", command.ErrInvalidArgument)
	}
	kind := cmd.Kind()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.coalesce && (b.policy == nil || b.policy(kind)) {
		for i := len(b.items) - 1; i >= b.head; i-- {
			if b.items[i].Kind() == kind {
				copy(b.items[i:], b.items[i+1:])
				b.items[len(b.items)-1] = nil
				b.items = b.items[:len(b.items)-1]
				b.coalesced.Add(1)
				break
			}
		}
	}
	b.trimLocked()
	b.items = append(b.items, cmd)
	b.enqueued.Add(1)
	return nil
}

// Clear discards every pending command without executing or notifying.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		b.items[i] = nil
	}
	b.items = b.items[:0]
	b.head = 0
}

// PendingCount returns the number of queued, not yet dequeued commands.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) - b.head
}

// Pending returns a copy of the pending commands in dispatch order.
func (b *Bus) Pending() []command.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]command.Command, len(b.items)-b.head)
	copy(out, b.items[b.head:])
	return out
}

// TryProcessNext dequeues and executes one command. It reports false and a
// NoOp result, without touching the executor or listeners, when the queue is
// empty.
func (b *Bus) TryProcessNext() (bool, command.Result) {
	b.mu.Lock()
	if b.head >= len(b.items) {
		b.trimLocked()
		b.mu.Unlock()
		return false, command.NoOp("")
	}
	cmd := b.items[b.head]
	b.items[b.head] = nil
	b.head++
	b.mu.Unlock()

	res := b.execute(cmd, *b.ctx.Load())
	b.executed.Add(1)
	switch res.Status() {
	case command.StatusFailed:
		b.failed.Add(1)
	case command.StatusCanceled:
		b.canceled.Add(1)
	}
	b.publish(cmd, res)
	return true, res
}

// ProcessAll drains up to maxCommands commands. It stops at the first Failed
// or Canceled result and returns it, leaving later commands queued. Otherwise
// it returns Succeeded(changed) if any command changed the layout and NoOp if
// none did.
func (b *Bus) ProcessAll(maxCommands int) command.Result {
	if maxCommands <= 0 {
		return command.NoOp("")
	}
	changed := false
	for i := 0; i < maxCommands; i++ {
		ok, res := b.TryProcessNext()
		if !ok {
			break
		}
		if res.Halts() {
			return res
		}
		if res.Changed() {
			changed = true
		}
	}
	if !changed {
		return command.NoOp("")
	}
	return command.Succeeded(true, "")
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Enqueued:  b.enqueued.Load(),
		Coalesced: b.coalesced.Load(),
		Executed:  b.executed.Load(),
		Failed:    b.failed.Load(),
		Canceled:  b.canceled.Load(),
		Pending:   b.PendingCount(),
	}
}

func (b *Bus) execute(cmd command.Command, ctx command.Context) (res command.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Errorf("%w: %s: %v", ErrExecutorPanic, command.DebugName(cmd, ""), r))
		}
	}()
	res, err := b.exec(cmd, ctx)
	if err != nil {
		return failure(err)
	}
	return res
}

// publish fans the result out to every listener. A panicking listener is
// logged and skipped; the drain and the remaining listeners carry on.
func (b *Bus) publish(cmd command.Command, res command.Result) {
	b.lmu.RLock()
	subs := make([]*listenerEntry, len(b.listeners))
	copy(subs, b.listeners)
	b.lmu.RUnlock()

	for _, l := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Bus] ⚠️ Listener panicked on %s: %v", command.DebugName(cmd, ""), r)
				}
			}()
			l.fn(cmd, res)
		}()
	}
}

// trimLocked compacts the consumed prefix once it is both large and the
// majority of the backing slice. Caller holds b.mu.
func (b *Bus) trimLocked() {
	if b.head < trimThreshold || b.head <= len(b.items)/2 {
		return
	}
	n := copy(b.items, b.items[b.head:])
	for i := n; i < len(b.items); i++ {
		b.items[i] = nil
	}
	b.items = b.items[:n]
	b.head = 0
}

func failure(cause error) command.Result {
	res, _ := command.Failed(cause, "")
	return res
}
