package helios

import (
	"time"

	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/timingwheel"
)

// snapshotTimer drives a hashed timing wheel that periodically injects a
// SAVE_SNAPSHOT administrative record into the ingress ring, per spec.md
// §4.9. LOAD_SNAPSHOT is injected once, synchronously, at Start.
type snapshotTimer struct {
	wheel    *timingwheel.Wheel
	idle     idlestrategy.IdleStrategy
	interval time.Duration
	nodeID   uint16
	schemaID uint16
	version  uint16
	ingress  *ingressConsumer

	runningFlag func() bool
}

func newSnapshotTimer(tickDuration time.Duration, ticksPerWheel int, interval time.Duration, nodeID uint16, idle idlestrategy.IdleStrategy, ingress *ingressConsumer, runningFlag func() bool) *snapshotTimer {
	return &snapshotTimer{
		wheel:       timingwheel.New(tickDuration, ticksPerWheel),
		idle:        idle,
		interval:    interval,
		nodeID:      nodeID,
		ingress:     ingress,
		runningFlag: runningFlag,
	}
}

// start injects the one-shot LOAD_SNAPSHOT record and schedules the first
// SAVE_SNAPSHOT timeout, then launches the dedicated expiry-loop goroutine.
func (t *snapshotTimer) start() {
	t.ingress.injectAdmin(TemplateLoadSnapshot, EncodeSnapshotRecord(TemplateLoadSnapshot, t.schemaID, t.version, t.nodeID))

	if t.interval > 0 {
		t.scheduleSave()
		go timingwheel.Run(t.wheel, t.idle, t.runningFlag)
	}
}

func (t *snapshotTimer) scheduleSave() {
	t.wheel.Schedule(t.interval, func() {
		t.ingress.injectAdmin(TemplateSaveSnapshot, EncodeSnapshotRecord(TemplateSaveSnapshot, t.schemaID, t.version, t.nodeID))
		if t.runningFlag() {
			t.scheduleSave()
		}
	})
}

func (t *snapshotTimer) stop() {
	t.wheel.Stop()
}
