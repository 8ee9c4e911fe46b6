package cmdlist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/rhi"
)

// ErrNoContext is returned when a queue without a context is asked to
// execute or wait.
var ErrNoContext = errors.New("cmdlist: command queue has no context")

// FrameStats accumulates counters of the command lists a queue executed.
type FrameStats struct {
	NumExecutions    int
	NumCommands      int
	NumDrawCalls     int
	NumDispatchCalls int
}

func (s FrameStats) String() string {
	return fmt.Sprintf("{executions: %v, commands: %v, draws: %v, dispatches: %v}",
		s.NumExecutions, s.NumCommands, s.NumDrawCalls, s.NumDispatchCalls)
}

// CommandQueue replays command lists against the immediate context of a
// device.
//
// Execution is serialized: a queue is the single submission point for its
// context, and commands run strictly in recording order. CommandQueue is
// safe for concurrent use, but lists being executed must not be recorded
// into at the same time.
type CommandQueue struct {
	mu    sync.Mutex
	ctx   rhi.Context
	stats FrameStats
}

// NewCommandQueue creates a queue that executes against ctx.
func NewCommandQueue(ctx rhi.Context) *CommandQueue {
	return &CommandQueue{ctx: ctx}
}

// SetContext replaces the context commands are executed against.
func (q *CommandQueue) SetContext(ctx rhi.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx = ctx
}

// Context returns the current context.
func (q *CommandQueue) Context() rhi.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ctx
}

// ExecuteCommandList executes l and resets it.
func (q *CommandQueue) ExecuteCommandList(l *CommandList) error {
	return q.ExecuteCommandLists(l)
}

// ExecuteCommandLists executes lists in argument order inside one
// Begin/End bracket of the context. Each command is executed and then
// releases its references; every list is reset afterwards, also when the
// context fails to begin, so no references leak. nil lists are skipped.
func (q *CommandQueue) ExecuteCommandLists(lists ...*CommandList) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		resetAll(lists)
		return ErrNoContext
	}

	if err := q.ctx.Begin(); err != nil {
		resetAll(lists)
		return fmt.Errorf("cmdlist: begin context: %w", err)
	}

	for _, l := range lists {
		if l == nil {
			continue
		}
		q.stats.NumCommands += l.NumCommands()
		q.stats.NumDrawCalls += l.NumDrawCalls()
		q.stats.NumDispatchCalls += l.NumDispatchCalls()
		for i, c := range l.commands {
			c.Execute(q.ctx)
			c.release()
			l.commands[i] = nil
		}
		l.commands = l.commands[:0]
		l.Reset()
	}
	q.stats.NumExecutions++

	if err := q.ctx.End(); err != nil {
		return fmt.Errorf("cmdlist: end context: %w", err)
	}
	return nil
}

func resetAll(lists []*CommandList) {
	for _, l := range lists {
		if l != nil {
			l.Reset()
		}
	}
}

// WaitForGPU flushes the context and blocks until all submitted work has
// completed.
func (q *CommandQueue) WaitForGPU() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return ErrNoContext
	}
	if err := q.ctx.Flush(); err != nil {
		return fmt.Errorf("cmdlist: wait for GPU: %w", err)
	}
	return nil
}

// Stats returns the counters accumulated since the last ResetStats.
func (q *CommandQueue) Stats() FrameStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// ResetStats zeroes the accumulated counters.
func (q *CommandQueue) ResetStats() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats = FrameStats{}
}
