package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"guanin/internal/logging"
	"guanin/internal/types"
)

var ErrControllerClosed = errors.New("controller is closed")

// Command is a stage-run request executed in the background.
type Command struct {
	Stage types.Stage
	// OnDone is called from the worker goroutine once the run finished.
	OnDone func(Result, error)
}

// Pending is the future of a dispatched command.
type Pending struct {
	Stage  types.Stage
	done   chan struct{}
	result Result
	err    error
}

func newPending(stage types.Stage) *Pending {
	return &Pending{Stage: stage, done: make(chan struct{})}
}

// Done is closed when the run finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the run finished or ctx is done. Giving up on the wait
// does not stop the run.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{Stage: p.Stage}, ctx.Err()
	}
}

func (p *Pending) resolve(result Result, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

type runTask struct {
	ctx     context.Context
	cmd     Command
	pending *Pending
}

// runQueue feeds dispatched commands to a single worker goroutine. submit
// never blocks: a full queue rejects the task.
type runQueue struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan runTask
	stopCh chan struct{}
	worker func(runTask)
	// discard receives tasks still queued at Close.
	discard func(runTask)
	wg      sync.WaitGroup
}

func newRunQueue(worker, discard func(runTask)) *runQueue {
	q := &runQueue{
		tasks:   make(chan runTask, 1),
		stopCh:  make(chan struct{}),
		worker:  worker,
		discard: discard,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *runQueue) submit(task runTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrControllerClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return types.ErrRunInFlight
	}
}

func (q *runQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stopCh)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *runQueue) loop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			q.drain()
			return
		case task := <-q.tasks:
			q.worker(task)
		}
	}
}

func (q *runQueue) drain() {
	for {
		select {
		case task := <-q.tasks:
			if q.discard != nil {
				q.discard(task)
			} else {
				task.pending.resolve(Result{Stage: task.cmd.Stage}, ErrControllerClosed)
			}
		default:
			return
		}
	}
}

// Dispatch starts cmd in the background. It fails immediately with
// ErrRunInFlight when another run is pending.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) (*Pending, error) {
	if !cmd.Stage.Valid() || cmd.Stage == types.StageIdle {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownStage, cmd.Stage)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		return nil, ErrControllerClosed
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Warn("dispatch rejected", logging.F("stage", cmd.Stage), logging.F("reason", types.ErrRunInFlight))
		return nil, types.ErrRunInFlight
	}
	pending := newPending(cmd.Stage)
	if err := c.queue.submit(runTask{ctx: ctx, cmd: cmd, pending: pending}); err != nil {
		c.inFlight.Store(false)
		return nil, err
	}
	return pending, nil
}

func (c *Controller) work(task runTask) {
	result, err := c.execute(task.ctx, task.cmd.Stage, true)
	c.complete(task, result, err)
}

// abandon settles a task that never ran because the controller closed.
func (c *Controller) abandon(task runTask) {
	c.logger.Warn("dispatched run dropped", logging.F("stage", task.cmd.Stage), logging.F("reason", ErrControllerClosed))
	c.complete(task, Result{Stage: task.cmd.Stage, Status: c.store.Status()}, ErrControllerClosed)
}

func (c *Controller) complete(task runTask, result Result, err error) {
	c.inFlight.Store(false)
	task.pending.resolve(result, err)
	if task.cmd.OnDone != nil {
		task.cmd.OnDone(result, err)
	}
}
