package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/dockbus/internal/command"
)

// testCmd is a command whose kind is set per instance.
type testCmd struct {
	kind command.Kind
	tag  string
}

func (c *testCmd) Kind() command.Kind { return c.kind }

func cmd(kind command.Kind, tag string) *testCmd {
	return &testCmd{kind: kind, tag: tag}
}

func testContext(t *testing.T, settings string) command.Context {
	t.Helper()
	ctx, err := command.NewContext("surface", "registry", settings)
	require.NoError(t, err)
	return ctx
}

// recorder is an executor that records dispatches in order.
type recorder struct {
	mu       sync.Mutex
	seen     []string
	settings []any
	result   func(c *testCmd) (command.Result, error)
}

func (r *recorder) exec(c command.Command, ctx command.Context) (command.Result, error) {
	tc := c.(*testCmd)
	r.mu.Lock()
	r.seen = append(r.seen, tc.tag)
	r.settings = append(r.settings, ctx.Settings())
	r.mu.Unlock()
	if r.result != nil {
		return r.result(tc)
	}
	return command.Succeeded(true, ""), nil
}

func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func newBus(t *testing.T, rec *recorder, opts ...Option) *Bus {
	t.Helper()
	b, err := New(rec.exec, testContext(t, "default"), opts...)
	require.NoError(t, err)
	return b
}

func pendingTags(b *Bus) []string {
	var out []string
	for _, c := range b.Pending() {
		out = append(out, c.(*testCmd).tag)
	}
	return out
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, testContext(t, "s"))
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))

	_, err = New((&recorder{}).exec, command.Context{})
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))
}

func TestEnqueue_Nil(t *testing.T) {
	b := newBus(t, &recorder{})
	err := b.Enqueue(nil)
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))
	assert.Equal(t, 0, b.PendingCount())
}

// valueCmd has a value receiver, so Kind on a nil *valueCmd panics.
type valueCmd struct{}

func (valueCmd) Kind() command.Kind { return "V" }

func TestEnqueue_TypedNil(t *testing.T) {
	b := newBus(t, &recorder{})

	var v *valueCmd
	err := b.Enqueue(v)
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))

	var tc *testCmd
	err = b.Enqueue(tc)
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))

	assert.Equal(t, 0, b.PendingCount())
	assert.Equal(t, int64(0), b.Stats().Enqueued)
}

func TestTryProcessNext_DispatchesWithCurrentContext(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec)

	require.NoError(t, b.Enqueue(cmd("T", "one")))
	require.NoError(t, b.SetContext(testContext(t, "swapped")))

	ok, res := b.TryProcessNext()
	assert.True(t, ok)
	assert.True(t, res.Changed())
	assert.Equal(t, []string{"one"}, rec.tags())
	assert.Equal(t, []any{"swapped"}, rec.settings)
}

func TestSetContext_RejectsInvalid(t *testing.T) {
	b := newBus(t, &recorder{})
	err := b.SetContext(command.Context{})
	assert.True(t, errors.Is(err, command.ErrInvalidArgument))
	assert.Equal(t, "default", b.Context().Settings())
}

func TestSetContext_NotRetroactive(t *testing.T) {
	var b *Bus
	rec := &recorder{}
	rec.result = func(c *testCmd) (command.Result, error) {
		if c.tag == "first" {
			require.NoError(t, b.SetContext(testContext(t, "later")))
		}
		return command.Succeeded(true, ""), nil
	}
	b = newBus(t, rec, WithCoalescing(false))
	require.NoError(t, b.Enqueue(cmd("T", "first")))
	require.NoError(t, b.Enqueue(cmd("T", "second")))

	b.ProcessAll(10)
	assert.Equal(t, []any{"default", "later"}, rec.settings)
}

func TestCoalescing_On(t *testing.T) {
	b := newBus(t, &recorder{})
	require.NoError(t, b.Enqueue(cmd("T", "t1")))
	require.NoError(t, b.Enqueue(cmd("T", "t2")))
	require.NoError(t, b.Enqueue(cmd("U", "u1")))

	assert.Equal(t, 2, b.PendingCount())
	assert.Equal(t, []string{"t2", "u1"}, pendingTags(b))
	assert.Equal(t, int64(1), b.Stats().Coalesced)
}

func TestCoalescing_Off(t *testing.T) {
	b := newBus(t, &recorder{}, WithCoalescing(false))
	require.NoError(t, b.Enqueue(cmd("T", "t1")))
	require.NoError(t, b.Enqueue(cmd("T", "t2")))
	require.NoError(t, b.Enqueue(cmd("U", "u1")))

	assert.Equal(t, 3, b.PendingCount())
	assert.Equal(t, []string{"t1", "t2", "u1"}, pendingTags(b))
}

func TestCoalescing_RemovesOnlyMostRecentMatch(t *testing.T) {
	b := newBus(t, &recorder{}, WithCoalescing(false))
	require.NoError(t, b.Enqueue(cmd("T", "t1")))
	require.NoError(t, b.Enqueue(cmd("U", "u1")))
	require.NoError(t, b.Enqueue(cmd("T", "t2")))

	WithCoalescing(true)(b)
	require.NoError(t, b.Enqueue(cmd("T", "t3")))

	assert.Equal(t, []string{"t1", "u1", "t3"}, pendingTags(b))
}

func TestCoalescing_IgnoresDequeued(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec)
	require.NoError(t, b.Enqueue(cmd("T", "t1")))
	ok, _ := b.TryProcessNext()
	require.True(t, ok)

	require.NoError(t, b.Enqueue(cmd("T", "t2")))
	assert.Equal(t, []string{"t2"}, pendingTags(b))
	assert.Equal(t, int64(0), b.Stats().Coalesced)
}

func TestCoalescePolicy(t *testing.T) {
	highFreq := func(k command.Kind) bool {
		hf, _ := command.IsHighFrequency(k)
		return hf
	}
	b := newBus(t, &recorder{}, WithCoalescePolicy(highFreq))

	require.NoError(t, b.Enqueue(cmd(command.SetSplitterRatio, "r1")))
	require.NoError(t, b.Enqueue(cmd(command.ActivateTab, "a1")))
	require.NoError(t, b.Enqueue(cmd(command.SetSplitterRatio, "r2")))
	require.NoError(t, b.Enqueue(cmd(command.ActivateTab, "a2")))

	assert.Equal(t, []string{"a1", "r2", "a2"}, pendingTags(b))
}

func TestProcessAll_HaltsOnFailure(t *testing.T) {
	rec := &recorder{}
	rec.result = func(c *testCmd) (command.Result, error) {
		if c.tag == "throwing" {
			return command.Result{}, errors.New("boom")
		}
		return command.Succeeded(true, ""), nil
	}
	b := newBus(t, rec, WithCoalescing(false))
	require.NoError(t, b.Enqueue(cmd("T", "ok1")))
	require.NoError(t, b.Enqueue(cmd("T", "throwing")))
	require.NoError(t, b.Enqueue(cmd("T", "ok3")))

	res := b.ProcessAll(10)
	assert.True(t, res.IsFailure())
	assert.EqualError(t, res.Cause(), "boom")
	assert.Equal(t, []string{"ok1", "throwing"}, rec.tags())
	assert.Equal(t, 1, b.PendingCount())
	assert.Equal(t, []string{"ok3"}, pendingTags(b))

	// The bus stays usable; the next drain picks up where it stopped.
	res = b.ProcessAll(10)
	assert.True(t, res.Changed())
	assert.Equal(t, 0, b.PendingCount())
}

func TestProcessAll_HaltsOnCancel(t *testing.T) {
	rec := &recorder{}
	rec.result = func(c *testCmd) (command.Result, error) {
		if c.tag == "cancel" {
			return command.Canceled("user aborted"), nil
		}
		return command.Succeeded(true, ""), nil
	}
	b := newBus(t, rec, WithCoalescing(false))
	require.NoError(t, b.Enqueue(cmd("T", "cancel")))
	require.NoError(t, b.Enqueue(cmd("T", "after")))

	res := b.ProcessAll(10)
	assert.True(t, res.IsCanceled())
	assert.Equal(t, "user aborted", res.Message())
	assert.Equal(t, 1, b.PendingCount())
}

func TestProcessAll_Aggregation(t *testing.T) {
	t.Run("nothing executed", func(t *testing.T) {
		b := newBus(t, &recorder{})
		res := b.ProcessAll(10)
		assert.Equal(t, command.StatusNoOp, res.Status())
	})

	t.Run("all noop", func(t *testing.T) {
		rec := &recorder{result: func(*testCmd) (command.Result, error) {
			return command.NoOp(""), nil
		}}
		b := newBus(t, rec, WithCoalescing(false))
		require.NoError(t, b.Enqueue(cmd("T", "a")))
		require.NoError(t, b.Enqueue(cmd("T", "b")))
		res := b.ProcessAll(10)
		assert.Equal(t, command.StatusNoOp, res.Status())
		assert.Len(t, rec.tags(), 2)
	})

	t.Run("succeeded without change", func(t *testing.T) {
		rec := &recorder{result: func(*testCmd) (command.Result, error) {
			return command.Succeeded(false, ""), nil
		}}
		b := newBus(t, rec)
		require.NoError(t, b.Enqueue(cmd("T", "a")))
		res := b.ProcessAll(10)
		assert.Equal(t, command.StatusNoOp, res.Status())
	})

	t.Run("one changed", func(t *testing.T) {
		rec := &recorder{result: func(c *testCmd) (command.Result, error) {
			if c.tag == "b" {
				return command.Succeeded(true, ""), nil
			}
			return command.NoOp(""), nil
		}}
		b := newBus(t, rec, WithCoalescing(false))
		require.NoError(t, b.Enqueue(cmd("T", "a")))
		require.NoError(t, b.Enqueue(cmd("T", "b")))
		require.NoError(t, b.Enqueue(cmd("T", "c")))
		res := b.ProcessAll(10)
		assert.Equal(t, command.StatusSucceeded, res.Status())
		assert.True(t, res.Changed())
	})
}

func TestProcessAll_RespectsLimit(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec, WithCoalescing(false))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Enqueue(cmd("T", fmt.Sprint(i))))
	}

	res := b.ProcessAll(0)
	assert.Equal(t, command.StatusNoOp, res.Status())
	assert.Empty(t, rec.tags())

	b.ProcessAll(2)
	assert.Equal(t, []string{"0", "1"}, rec.tags())
	assert.Equal(t, 3, b.PendingCount())
}

func TestTryProcessNext_Empty(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec)
	var notified atomic.Int32
	b.Subscribe(func(command.Command, command.Result) { notified.Add(1) })

	ok, res := b.TryProcessNext()
	assert.False(t, ok)
	assert.Equal(t, command.StatusNoOp, res.Status())
	assert.Empty(t, rec.tags())
	assert.Equal(t, int32(0), notified.Load())
}

func TestClear(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec, WithCoalescing(false))
	var notified atomic.Int32
	b.Subscribe(func(command.Command, command.Result) { notified.Add(1) })

	require.NoError(t, b.Enqueue(cmd("T", "a")))
	require.NoError(t, b.Enqueue(cmd("U", "b")))
	b.Clear()

	assert.Equal(t, 0, b.PendingCount())
	ok, res := b.TryProcessNext()
	assert.False(t, ok)
	assert.Equal(t, command.StatusNoOp, res.Status())
	assert.Empty(t, rec.tags())
	assert.Equal(t, int32(0), notified.Load())
}

func TestExecutorPanic_BecomesFailure(t *testing.T) {
	rec := &recorder{result: func(*testCmd) (command.Result, error) {
		panic("layout exploded")
	}}
	b := newBus(t, rec)
	require.NoError(t, b.Enqueue(cmd("T", "a")))

	ok, res := b.TryProcessNext()
	assert.True(t, ok)
	require.True(t, res.IsFailure())
	assert.True(t, errors.Is(res.Cause(), ErrExecutorPanic))
	assert.Contains(t, res.Cause().Error(), "layout exploded")
	assert.Equal(t, int64(1), b.Stats().Failed)
}

func TestSubscribe_ReceivesResults(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec)

	var got []string
	unsubscribe := b.Subscribe(func(c command.Command, res command.Result) {
		got = append(got, c.(*testCmd).tag+":"+res.Status().String())
	})

	require.NoError(t, b.Enqueue(cmd("T", "a")))
	b.ProcessAll(1)
	unsubscribe()
	unsubscribe()
	require.NoError(t, b.Enqueue(cmd("T", "b")))
	b.ProcessAll(1)

	assert.Equal(t, []string{"a:succeeded"}, got)
}

func TestListenerPanic_DoesNotStopDrain(t *testing.T) {
	rec := &recorder{}
	var second atomic.Int32
	b := newBus(t, rec,
		WithCoalescing(false),
		WithListener(func(command.Command, command.Result) { panic("bad listener") }),
		WithListener(func(command.Command, command.Result) { second.Add(1) }),
	)
	require.NoError(t, b.Enqueue(cmd("T", "a")))
	require.NoError(t, b.Enqueue(cmd("T", "b")))

	res := b.ProcessAll(10)
	assert.True(t, res.Changed())
	assert.Equal(t, int32(2), second.Load())
}

func TestReentrantExecutor(t *testing.T) {
	var b *Bus
	rec := &recorder{}
	rec.result = func(c *testCmd) (command.Result, error) {
		if c.tag == "parent" {
			// Enqueue and query from inside the executor must not deadlock.
			require.NoError(t, b.Enqueue(cmd("U", "child")))
			assert.Equal(t, 1, b.PendingCount())
		}
		return command.Succeeded(true, ""), nil
	}
	b = newBus(t, rec)
	require.NoError(t, b.Enqueue(cmd("T", "parent")))

	b.ProcessAll(10)
	assert.Equal(t, []string{"parent", "child"}, rec.tags())
}

func TestReentrantListener(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec)
	b.Subscribe(func(c command.Command, _ command.Result) {
		if c.(*testCmd).tag == "first" {
			require.NoError(t, b.Enqueue(cmd("U", "from-listener")))
			b.ProcessAll(10)
		}
	})
	require.NoError(t, b.Enqueue(cmd("T", "first")))

	b.ProcessAll(10)
	assert.Equal(t, []string{"first", "from-listener"}, rec.tags())
}

func TestTrimming_IsBehaviorNeutral(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec, WithCoalescing(false))
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Enqueue(cmd("T", fmt.Sprint(i))))
	}

	b.ProcessAll(70)
	assert.Equal(t, 30, b.PendingCount())
	assert.Equal(t, 100, len(b.items), "no compaction until the next queue mutation")

	require.NoError(t, b.Enqueue(cmd("T", "100")))
	assert.Equal(t, 31, b.PendingCount())
	assert.Equal(t, 31, len(b.items))
	assert.Equal(t, 0, b.head)

	b.ProcessAll(100)
	tags := rec.tags()
	require.Len(t, tags, 101)
	for i, tag := range tags {
		assert.Equal(t, fmt.Sprint(i), tag)
	}
}

func TestTrimming_BelowThreshold(t *testing.T) {
	b := newBus(t, &recorder{}, WithCoalescing(false))
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Enqueue(cmd("T", fmt.Sprint(i))))
	}
	b.ProcessAll(15)
	require.NoError(t, b.Enqueue(cmd("T", "x")))

	assert.Equal(t, 21, len(b.items))
	assert.Equal(t, 6, b.PendingCount())
}

func TestTrimming_OnEmptyDequeue(t *testing.T) {
	b := newBus(t, &recorder{}, WithCoalescing(false))
	for i := 0; i < 64; i++ {
		require.NoError(t, b.Enqueue(cmd("T", fmt.Sprint(i))))
	}
	b.ProcessAll(1000)

	assert.Equal(t, 0, len(b.items))
	assert.Equal(t, 0, b.head)
}

func TestConcurrentProducers(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, rec, WithCoalescing(false))

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = b.Enqueue(cmd("T", fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}

	done := make(chan struct{})
	var drained atomic.Int64
	go func() {
		defer close(done)
		for drained.Load() < 400 {
			if ok, _ := b.TryProcessNext(); ok {
				drained.Add(1)
			}
		}
	}()

	wg.Wait()
	<-done
	assert.Len(t, rec.tags(), 400)
	assert.Equal(t, 0, b.PendingCount())
	assert.Equal(t, int64(400), b.Stats().Executed)
}
