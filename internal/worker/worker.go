// Package worker implements the dedicated poll/consume thread that drives
// one pipeline stage, per spec.md §4.3. Adapted from agilira/iris's
// internal/zephyroslite.LoopProcess consumer loop and management.go's
// Close/running-flag lifecycle, generalized from a fixed log-ring consumer
// to an arbitrary stage PollFunc with explicit start/stop states.
package worker

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/xatomic"
)

// State is the worker lifecycle state machine from spec.md §4.3.
type State int32

const (
	Constructed State = iota
	Running
	Stopping
	Joined
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Counters are the two release-ordered 64-bit counters spec.md §3 requires
// of every input worker.
type Counters struct {
	successfulReads xatomic.PaddedInt64
	failedReads     xatomic.PaddedInt64
}

// IncSuccessful increments the successful-read counter.
func (c *Counters) IncSuccessful() { c.successfulReads.Add(1) }

// IncFailed increments the failed-read counter.
func (c *Counters) IncFailed() { c.failedReads.Add(1) }

// Snapshot returns (successful, failed) read counts observed so far.
func (c *Counters) Snapshot() (successful, failed int64) {
	return c.successfulReads.Load(), c.failedReads.Load()
}

// FailureRatio returns failed / (failed + successful), or 0 when no polls
// have occurred yet.
func (c *Counters) FailureRatio() float64 {
	s, f := c.Snapshot()
	total := s + f
	if total == 0 {
		return 0
	}
	return float64(f) / float64(total)
}

// PollFunc executes one poll/consume step and returns the number of work
// units processed. A zero return means the iteration found no work.
type PollFunc func() (workCount int, err error)

// CloseFunc releases resources owned by the stage (subscription, handler,
// publication). It must be idempotent-safe to call exactly once.
type CloseFunc func() error

// Worker owns one goroutine, a running flag, and one poll step, per
// spec.md §4.3.
type Worker struct {
	Name     string
	Counters Counters

	poll  PollFunc
	idle  idlestrategy.IdleStrategy
	close CloseFunc
	log   io.Writer

	state    atomic.Int32
	done     chan struct{}
	closeErr error
	once     sync.Once
}

// New creates a worker in the Constructed state.
func New(name string, poll PollFunc, idle idlestrategy.IdleStrategy, closeFn CloseFunc, log io.Writer) *Worker {
	if log == nil {
		log = io.Discard
	}
	return &Worker{
		Name:  name,
		poll:  poll,
		idle:  idle,
		close: closeFn,
		log:   log,
		done:  make(chan struct{}),
	}
}

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = fmt.Errorf("worker: already started")

// ErrNotStarted is returned by Close when called before Start.
var ErrNotStarted = fmt.Errorf("worker: close called before start")

// Start launches the worker goroutine. It is a usage error to call Start
// more than once.
func (w *Worker) Start() error {
	if !w.state.CompareAndSwap(int32(Constructed), int32(Running)) {
		return ErrAlreadyStarted
	}
	go w.run()
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	for State(w.state.Load()) == Running {
		n, err := w.poll()
		if err != nil {
			fmt.Fprintf(w.log, "worker %s: poll error: %v\n", w.Name, err)
		}
		if n == 0 {
			w.Counters.IncFailed()
			w.idle.Idle(0)
		} else {
			w.Counters.IncSuccessful()
			w.idle.Idle(n)
		}
	}
}

// Close stops the worker, joins its goroutine, then releases its attached
// resources exactly once. It is a usage error to call Close before Start.
// A second call is a no-op that returns the result of the first.
func (w *Worker) Close() error {
	if State(w.state.Load()) == Constructed {
		return ErrNotStarted
	}
	w.once.Do(func() {
		w.state.CompareAndSwap(int32(Running), int32(Stopping))
		<-w.done
		w.state.Store(int32(Joined))
		if w.close != nil {
			w.closeErr = w.close()
		}
		successful, failed := w.Counters.Snapshot()
		fmt.Fprintf(w.log, "worker %s: closed, reads=%d failures=%d failure_ratio=%.4f\n",
			w.Name, successful, failed, w.Counters.FailureRatio())
	})
	return w.closeErr
}

// CurrentState returns the worker's current lifecycle state.
func (w *Worker) CurrentState() State {
	return State(w.state.Load())
}
