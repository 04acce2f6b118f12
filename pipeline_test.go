package helios

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/journal/filejournal"
	"github.com/canepat/helios/transport"
	"github.com/canepat/helios/transport/loopback"
)

func seqPayload(i int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(i))
	return buf
}

func seqValue(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

const appMsgType int32 = 7

func offerSeq(t *testing.T, pub transport.Publication, msgTypeID int32, payload []byte) {
	t.Helper()
	frame := transport.EncodeFrame(msgTypeID, payload)
	for {
		pos, err := pub.Offer(frame, 0, len(frame))
		if err != nil {
			t.Fatalf("Offer: %v", err)
		}
		if pos >= 0 {
			return
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// drainFrames polls sub until want records have been decoded or deadline
// passes, appending each (msgTypeID, payload) pair in delivery order.
func drainFrames(sub transport.Subscription, want int, deadline time.Time) (types []int32, payloads [][]byte) {
	for time.Now().Before(deadline) && len(types) < want {
		n, _ := sub.Poll(func(_ int32, buf []byte, _ int32, _ transport.FragmentFlags) {
			msgTypeID, payload, ok := transport.DecodeFrame(buf)
			if !ok {
				return
			}
			types = append(types, msgTypeID)
			payloads = append(payloads, append([]byte(nil), payload...))
		}, 256)
		if n == 0 {
			time.Sleep(500 * time.Microsecond)
		}
	}
	return
}

// TestEchoPipeline covers S1: no replica, no journal, every ingested record
// is observed by the handler and echoed back in order.
func TestEchoPipeline(t *testing.T) {
	tp := loopback.New()

	var mu sync.Mutex
	var seen []uint64

	pipeline, err := New(PipelineConfig{
		Transport:       tp,
		IngressChannel:  "ingress",
		IngressStreamID: 1,
	}, func(pool *RingBufferPool) Handler {
		return HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
			if IsAdministrative(msgTypeID) {
				return
			}
			mu.Lock()
			seen = append(seen, seqValue(buf[offset:offset+length]))
			mu.Unlock()

			r, ok := pool.Get("echo")
			if !ok {
				return
			}
			for {
				ok, err := r.Write(msgTypeID, buf, offset, length)
				if err != nil || ok {
					return
				}
			}
		})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := pipeline.AddEndPoint("echo", "response", 2); err != nil {
		t.Fatalf("AddEndPoint: %v", err)
	}

	respSub, err := tp.AddSubscription("response", 2)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	ingressPub, err := tp.AddPublication("ingress", 1)
	if err != nil {
		t.Fatalf("AddPublication: %v", err)
	}

	if err := pipeline.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pipeline.Close()

	const n = 2000
	for i := 0; i < n; i++ {
		offerSeq(t, ingressPub, appMsgType, seqPayload(i))
	}

	_, payloads := drainFrames(respSub, n, time.Now().Add(10*time.Second))
	if len(payloads) != n {
		t.Fatalf("received %d echoes, want %d", len(payloads), n)
	}
	for i, p := range payloads {
		if got := seqValue(p); got != uint64(i) {
			t.Fatalf("echo[%d] = %d, want %d (order violated)", i, got, i)
		}
	}

	mu.Lock()
	handlerCount := len(seen)
	mu.Unlock()
	if handlerCount != n {
		t.Fatalf("handler observed %d records, want %d", handlerCount, n)
	}
}

// TestJournalPipeline covers S2: the handler observes every record, and the
// journal file holds the LOAD_SNAPSHOT record injected at Start followed by
// every application record in order.
func TestJournalPipeline(t *testing.T) {
	tp := loopback.New()
	path := filepath.Join(t.TempDir(), "journal.log")
	w, err := filejournal.Open(filejournal.Config{Filename: path, MaxSize: "10MB"})
	if err != nil {
		t.Fatalf("filejournal.Open: %v", err)
	}

	var seen int64

	pipeline, err := New(PipelineConfig{
		Transport:       tp,
		IngressChannel:  "ingress",
		IngressStreamID: 1,
		Config:          Config{JournalEnabled: true},
		JournalWriter:   w,
	}, func(pool *RingBufferPool) Handler {
		return HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
			if !IsAdministrative(msgTypeID) {
				atomic.AddInt64(&seen, 1)
			}
		})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ingressPub, err := tp.AddPublication("ingress", 1)
	if err != nil {
		t.Fatalf("AddPublication: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		offerSeq(t, ingressPub, appMsgType, seqPayload(i))
	}

	deadline := time.Now().Add(10 * time.Second)
	for atomic.LoadInt64(&seen) < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&seen); got != n {
		t.Fatalf("handler observed %d records, want %d", got, n)
	}

	if err := pipeline.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	const adminLen = adminHeaderLength + mmbHeaderLength
	if len(data) != adminLen+n*8 {
		t.Fatalf("journal file is %d bytes, want %d", len(data), adminLen+n*8)
	}
	load := TemplateLoadSnapshot
	if got := DecodeAdminHeader(data[:adminHeaderLength]).TemplateID; got != uint16(load) {
		t.Fatalf("journal head template id = %d, want %d (LOAD_SNAPSHOT)", got, uint16(load))
	}
	for i := 0; i < n; i++ {
		off := adminLen + i*8
		if got := binary.LittleEndian.Uint64(data[off : off+8]); got != uint64(i) {
			t.Fatalf("journal record %d = %d, want %d (order violated)", i, got, i)
		}
	}
}

// TestReplicaAndJournalPipeline covers S3: with both stages enabled, the
// replica stream receives the LOAD_SNAPSHOT record injected at Start
// followed by every application record in order.
func TestReplicaAndJournalPipeline(t *testing.T) {
	tp := loopback.New()
	path := filepath.Join(t.TempDir(), "journal.log")
	w, err := filejournal.Open(filejournal.Config{Filename: path, MaxSize: "10MB"})
	if err != nil {
		t.Fatalf("filejournal.Open: %v", err)
	}

	pipeline, err := New(PipelineConfig{
		Transport:       tp,
		IngressChannel:  "ingress",
		IngressStreamID: 1,
		Config:          Config{ReplicaEnabled: true, JournalEnabled: true},
		ReplicaChannel:  "replica",
		ReplicaStreamID: 9,
		JournalWriter:   w,
	}, func(pool *RingBufferPool) Handler {
		return HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	replicaSub, err := tp.AddSubscription("replica", 9)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	ingressPub, err := tp.AddPublication("ingress", 1)
	if err != nil {
		t.Fatalf("AddPublication: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pipeline.Close()

	const n = 300
	for i := 0; i < n; i++ {
		offerSeq(t, ingressPub, appMsgType, seqPayload(i))
	}

	types, payloads := drainFrames(replicaSub, n+1, time.Now().Add(10*time.Second))
	if len(payloads) != n+1 {
		t.Fatalf("replica observed %d records, want %d (LOAD_SNAPSHOT plus %d application records)", len(payloads), n+1, n)
	}
	if types[0] != TemplateLoadSnapshot {
		t.Fatalf("first replica record type = %d, want %d (LOAD_SNAPSHOT)", types[0], TemplateLoadSnapshot)
	}
	for i, p := range payloads[1:] {
		if got := seqValue(p); got != uint64(i) {
			t.Fatalf("replica record %d = %d, want %d (order violated)", i, got, i)
		}
	}
}

// TestBackpressureDropsNothing covers S4: when a downstream consumer lags,
// the pipeline throttles rather than drops, and every record still arrives
// in order once draining resumes.
func TestBackpressureDropsNothing(t *testing.T) {
	tp := loopback.New()

	pipeline, err := New(PipelineConfig{
		Transport:       tp,
		IngressChannel:  "ingress",
		IngressStreamID: 1,
		Config:          Config{RingBufferCapacity: 1024},
	}, func(pool *RingBufferPool) Handler {
		idle := idlestrategy.NewBusySpin()
		return HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
			if IsAdministrative(msgTypeID) {
				return
			}
			r, ok := pool.Get("echo")
			if !ok {
				return
			}
			for {
				written, err := r.Write(msgTypeID, buf, offset, length)
				if err != nil {
					return
				}
				if written {
					return
				}
				idle.Idle(0)
			}
		})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := pipeline.AddEndPoint("echo", "response", 2); err != nil {
		t.Fatalf("AddEndPoint: %v", err)
	}

	respSub, err := tp.AddSubscription("response", 2)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	ingressPub, err := tp.AddPublication("ingress", 1)
	if err != nil {
		t.Fatalf("AddPublication: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pipeline.Close()

	// Offer far more records than the small rings can hold without
	// draining the response stream at all; Offer/Write retries absorb the
	// backpressure.
	const n = 1500
	for i := 0; i < n; i++ {
		offerSeq(t, ingressPub, appMsgType, seqPayload(i))
	}

	_, payloads := drainFrames(respSub, n, time.Now().Add(15*time.Second))
	if len(payloads) != n {
		t.Fatalf("received %d of %d records: some were dropped under backpressure", len(payloads), n)
	}
	for i, p := range payloads {
		if got := seqValue(p); got != uint64(i) {
			t.Fatalf("response %d = %d, want %d (order violated under backpressure)", i, got, i)
		}
	}

	for _, r := range pipeline.ReportList() {
		if r.Successful()+r.Failed() == 0 {
			t.Errorf("report %q observed no polls at all", r.Name)
		}
	}
}

// TestSnapshotTimerInjectsRecords covers S5: exactly one LOAD_SNAPSHOT near
// start, and periodic SAVE_SNAPSHOT records while running.
func TestSnapshotTimerInjectsRecords(t *testing.T) {
	tp := loopback.New()

	var mu sync.Mutex
	var loads, saves int

	pipeline, err := New(PipelineConfig{
		Transport:       tp,
		IngressChannel:  "ingress",
		IngressStreamID: 1,
		Config: Config{
			TickDuration:     time.Millisecond,
			TicksPerWheel:    64,
			SnapshotInterval: 10 * time.Millisecond,
		},
		NodeID: 3,
	}, func(pool *RingBufferPool) Handler {
		return HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
			mu.Lock()
			defer mu.Unlock()
			switch msgTypeID {
			case TemplateLoadSnapshot:
				loads++
			case TemplateSaveSnapshot:
				saves++
			}
		})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pipeline.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	pipeline.Close()

	mu.Lock()
	defer mu.Unlock()
	if loads != 1 {
		t.Errorf("LOAD_SNAPSHOT observed %d times, want exactly 1", loads)
	}
	// ~30 ticks expected at a 10ms interval over 300ms; generous bounds
	// absorb scheduler jitter and the shutdown race.
	if saves < 10 || saves > 60 {
		t.Errorf("SAVE_SNAPSHOT observed %d times, want roughly 30 (10-60)", saves)
	}
}

// TestPipelineRejectsMissingDependencies covers S6: construction and
// registration fail fast on missing required collaborators rather than
// building a half-wired pipeline.
func TestPipelineRejectsMissingDependencies(t *testing.T) {
	handlerFactory := func(pool *RingBufferPool) Handler {
		return HandlerFunc(func(int32, []byte, int, int) {})
	}

	if _, err := New(PipelineConfig{IngressChannel: "i", IngressStreamID: 1}, handlerFactory); err == nil {
		t.Error("New with nil Transport should fail")
	}

	if _, err := New(PipelineConfig{Transport: loopback.New(), IngressChannel: "i", IngressStreamID: 1}, nil); err == nil {
		t.Error("New with nil handlerFactory should fail")
	}

	if _, err := New(PipelineConfig{Transport: loopback.New(), IngressChannel: "i", IngressStreamID: 1}, func(*RingBufferPool) Handler {
		return nil
	}); err == nil {
		t.Error("New with a handler factory returning nil should fail")
	}

	if _, err := New(PipelineConfig{
		Transport:       loopback.New(),
		IngressChannel:  "i",
		IngressStreamID: 1,
		Config:          Config{JournalEnabled: true},
	}, handlerFactory); err == nil {
		t.Error("New with JournalEnabled and a nil JournalWriter should fail")
	}

	if _, err := NewServiceReport("x", nil, &Counters{}); err == nil {
		t.Error("NewServiceReport with a nil ingress counters should fail")
	}
}
