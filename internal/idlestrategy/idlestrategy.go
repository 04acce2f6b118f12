// Package idlestrategy implements the backoff policies invoked by pipeline
// workers when a poll iteration found no work.
//
// Adapted from agilira/iris's internal/zephyroslite idle strategies: the
// same spin/yield/park progression, generalized from a log-consumer-only
// Idle() bool signature to the Idle(workCount int) shape spec.md §4.2
// requires (idle(0) on no work, idle(n) on n units of work), and extended
// with a composite ramp combining the three fixed strategies.
package idlestrategy

import (
	"runtime"
	"sync/atomic"
	"time"
)

// IdleStrategy is invoked by a worker once per poll iteration. workCount is
// zero when the iteration produced no work, or the number of work units
// otherwise. Implementations carry no state that affects correctness, only
// latency/CPU trade-offs.
type IdleStrategy interface {
	Idle(workCount int)
	Reset()
	String() string
}

// BusySpin never yields the CPU. Minimum latency, maximum CPU usage.
type BusySpin struct{}

// NewBusySpin creates a busy-spin idle strategy.
func NewBusySpin() *BusySpin { return &BusySpin{} }

func (s *BusySpin) Idle(int)     {}
func (s *BusySpin) Reset()       {}
func (s *BusySpin) String() string { return "busy-spin" }

// Yielding calls runtime.Gosched() on every idle call that found no work,
// trading some latency for scheduler fairness; a call reporting work
// returns immediately.
type Yielding struct{}

// NewYielding creates a yielding idle strategy.
func NewYielding() *Yielding { return &Yielding{} }

func (s *Yielding) Idle(workCount int) {
	if workCount == 0 {
		runtime.Gosched()
	}
}
func (s *Yielding) Reset()         {}
func (s *Yielding) String() string { return "yield" }

// Park sleeps for a fixed duration on every idle call that found no work; a
// call reporting work returns immediately. Lowest CPU usage, highest
// latency of the three fixed strategies.
type Park struct {
	duration time.Duration
}

// NewPark creates a park-nanos idle strategy that parks for d on each idle
// call with no work.
func NewPark(d time.Duration) *Park {
	if d <= 0 {
		d = time.Microsecond
	}
	return &Park{duration: d}
}

func (s *Park) Idle(workCount int) {
	if workCount == 0 {
		time.Sleep(s.duration)
	}
}
func (s *Park) Reset()         {}
func (s *Park) String() string { return "park" }

// Composite ramps from busy-spin to yield to park as consecutive empty
// polls accumulate, resetting to the hot spin the moment work is found.
type Composite struct {
	spins atomic.Int64

	maxSpins   int64
	maxYields  int64
	parkPeriod time.Duration
}

// NewComposite creates a spin -> yield -> park ramp. maxSpins is the number
// of empty polls spent pure spinning; maxYields (counted from zero, not
// added to maxSpins) is the number of subsequent empty polls spent
// yielding before the strategy starts parking for parkPeriod per idle
// call.
func NewComposite(maxSpins, maxYields int64, parkPeriod time.Duration) *Composite {
	if maxSpins < 0 {
		maxSpins = 0
	}
	if maxYields < 0 {
		maxYields = 0
	}
	if parkPeriod <= 0 {
		parkPeriod = time.Microsecond
	}
	return &Composite{maxSpins: maxSpins, maxYields: maxYields, parkPeriod: parkPeriod}
}

func (s *Composite) Idle(workCount int) {
	if workCount != 0 {
		s.Reset()
		return
	}

	n := s.spins.Add(1)
	switch {
	case n <= s.maxSpins:
		// hot spin, nothing to do
	case n <= s.maxSpins+s.maxYields:
		runtime.Gosched()
	default:
		time.Sleep(s.parkPeriod)
	}
}

func (s *Composite) Reset() { s.spins.Store(0) }

func (s *Composite) String() string { return "composite" }
