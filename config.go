package helios

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/canepat/helios/internal/idlestrategy"
)

// JournalStrategy names the journal's write positioning mode, per spec.md
// §8's journal_strategy enumeration. applyDefaults fills in
// JournalStrategySeek; no stage or journal.Writer in this module reads the
// value, so it does not change how records are written.
type JournalStrategy string

const (
	// JournalStrategySeek names sequential append at the writer's own
	// current offset (the default).
	JournalStrategySeek JournalStrategy = "seek"
	// JournalStrategyPositional names writes at an explicit,
	// caller-supplied offset.
	JournalStrategyPositional JournalStrategy = "positional"
)

// Config holds the pipeline's tunables, per spec.md §8. Zero-valued fields
// are replaced by applyDefaults with the spec's stated defaults.
type Config struct {
	// ReplicaEnabled turns on the Replica Stage between ingress and
	// journal.
	ReplicaEnabled bool
	// JournalEnabled turns on the Journal Stage.
	JournalEnabled bool
	// JournalFlushingEnabled makes the Journal Stage call Flush once after
	// each poll batch that wrote at least one record, rather than relying
	// on the writer's own buffering policy.
	JournalFlushingEnabled bool
	// JournalStrategy names the journal's write positioning mode; it is
	// stored but not read by any stage (see the JournalStrategy type).
	JournalStrategy JournalStrategy

	// SubscriberIdleStrategy backs off every stage worker (ingress,
	// replica, journal, service, egress and event producers) and the
	// snapshot timer loop when a poll finds no work.
	SubscriberIdleStrategy idlestrategy.IdleStrategy
	// WriteIdleStrategy backs off a stage's retry loop when a ring write
	// is rejected for lack of space or a publication offer is
	// back-pressured.
	WriteIdleStrategy idlestrategy.IdleStrategy

	// FrameCountLimit bounds fragments reassembled per poll step.
	FrameCountLimit int
	// TickDuration is the timing wheel's tick resolution.
	TickDuration time.Duration
	// TicksPerWheel is the timing wheel's bucket count (power of two).
	TicksPerWheel int
	// RingBufferCapacity is each ring's capacity in bytes; it must be a
	// positive power of two, per internal/ring.New's contract. The
	// producer/consumer cursors live in separate cache-line padded fields
	// (internal/xatomic.PaddedInt64), not in this buffer, so no extra
	// trailer bytes are added on top of it.
	RingBufferCapacity int32
	// SnapshotInterval is the period at which SAVE_SNAPSHOT records are
	// injected once the pipeline is running.
	SnapshotInterval time.Duration
	// NodeID is not read by New: PipelineConfig declares its own NodeID,
	// which shadows this field, and that value is the one carried in every
	// administrative record's MMBHeader.
	NodeID uint16
}

// defaults per spec.md §8.
const (
	defaultFrameCountLimit    = 10
	defaultTickDuration       = 100 * time.Microsecond
	defaultTicksPerWheel      = 512
	defaultRingBufferCapacity = 16 * 1024
	defaultSnapshotInterval   = 0 // disabled unless explicitly configured
)

func applyDefaults(cfg Config) Config {
	if cfg.FrameCountLimit <= 0 {
		cfg.FrameCountLimit = defaultFrameCountLimit
	}
	if cfg.TickDuration <= 0 {
		cfg.TickDuration = defaultTickDuration
	}
	if cfg.TicksPerWheel <= 0 {
		cfg.TicksPerWheel = defaultTicksPerWheel
	}
	if cfg.RingBufferCapacity <= 0 {
		cfg.RingBufferCapacity = defaultRingBufferCapacity
	}
	if cfg.JournalStrategy == "" {
		cfg.JournalStrategy = JournalStrategySeek
	}
	if cfg.SubscriberIdleStrategy == nil {
		cfg.SubscriberIdleStrategy = idlestrategy.NewBusySpin()
	}
	if cfg.WriteIdleStrategy == nil {
		cfg.WriteIdleStrategy = idlestrategy.NewBusySpin()
	}
	return cfg
}

// ParseIdleStrategy resolves one of spec.md §8's four idle-strategy names
// ("busy-spin", "yield", "park", "composite") into an
// internal/idlestrategy.IdleStrategy, for configuration sources (flags,
// files) that carry the choice as a string.
func ParseIdleStrategy(name string) (idlestrategy.IdleStrategy, error) {
	switch strings.ToLower(name) {
	case "", "busy-spin", "busyspin":
		return idlestrategy.NewBusySpin(), nil
	case "yield", "yielding":
		return idlestrategy.NewYielding(), nil
	case "park":
		return idlestrategy.NewPark(0), nil
	case "composite":
		return idlestrategy.NewComposite(0, 0, 0), nil
	default:
		return nil, newError(ErrCodeUsage, fmt.Sprintf("unknown idle strategy %q", name))
	}
}

// ParseSize converts size strings like "16KB", "64MB" to bytes, using the
// same KB/MB/GB notation as agilira/lethe's own ParseSize.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(s)
	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier, numStr = 1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "MB"):
		multiplier, numStr = 1024*1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "GB"):
		multiplier, numStr = 1024*1024*1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "K"):
		multiplier, numStr = 1024, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "M"):
		multiplier, numStr = 1024*1024, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "G"):
		multiplier, numStr = 1024*1024*1024, upper[:len(upper)-1]
	default:
		return 0, fmt.Errorf("unknown size suffix in %q (supported: KB/K, MB/M, GB/G)", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number in %q: %w", s, err)
	}
	result := val * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return result, nil
}
