package helios

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/canepat/helios/internal/ring"
	"github.com/canepat/helios/internal/worker"
	"github.com/canepat/helios/journal"
	"github.com/canepat/helios/transport"
)

type pipelineState int32

const (
	pipelineConstructed pipelineState = iota
	pipelineRunning
	pipelineClosed
)

// producerEntry is one registered egress or event producer, keyed by the
// name it was registered under in the RingBufferPool.
type producerEntry struct {
	key    string
	ring   *ring.RingBuffer
	worker *worker.Worker
}

// Pipeline is the composed graph for one service or gateway instance, per
// spec.md §3/§4.10. It owns all stages, rings, subscriptions,
// publications, and the timing wheel; construct → Start → (running) →
// Close is the only supported lifecycle.
type Pipeline struct {
	cfg       Config
	transport transport.Transport
	handler   Handler
	pool      *RingBufferPool
	log       io.Writer
	nodeID    uint16

	ingressRing   *ring.RingBuffer
	ingress       *ingressConsumer
	ingressWorker *worker.Worker

	replica       *replicaStage
	replicaWorker *worker.Worker

	journalStg    *journalStage
	journalWorker *worker.Worker

	service       *serviceStage
	serviceWorker *worker.Worker

	egressProducers []*producerEntry
	eventProducers  []*producerEntry

	serviceReports []*ServiceReport

	snapshot *snapshotTimer

	availableHandler   AssociationHandler
	unavailableHandler AssociationHandler

	running atomic.Bool
	state   atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

// PipelineConfig is the full set of construction-time parameters for a
// Pipeline.
type PipelineConfig struct {
	Config
	Transport       transport.Transport
	IngressChannel  string
	IngressStreamID int32
	ReplicaChannel  string
	ReplicaStreamID int32
	JournalWriter   journal.Writer
	NodeID          uint16
	Log             io.Writer
}

// New constructs a pipeline per pcfg, wiring the Replica and Journal
// stages in when their respective enable flags are set, per spec.md
// §4.10. handlerFactory receives the pipeline's RingBufferPool so the
// user handler can be built with access to output rings that are
// registered after this call returns, resolving spec.md §9's cyclic
// handler/pool dependency.
func New(pcfg PipelineConfig, handlerFactory func(pool *RingBufferPool) Handler) (*Pipeline, error) {
	if pcfg.Transport == nil {
		return nil, newError(ErrCodeUsage, "pipeline: transport is required")
	}
	if handlerFactory == nil {
		return nil, newError(ErrCodeUsage, "pipeline: handler factory is required")
	}

	cfg := applyDefaults(pcfg.Config)
	log := pcfg.Log
	if log == nil {
		log = io.Discard
	}

	pool := NewRingBufferPool()
	handler := handlerFactory(pool)
	if handler == nil {
		return nil, newError(ErrCodeUsage, "pipeline: handler factory returned a nil handler")
	}

	p := &Pipeline{cfg: cfg, transport: pcfg.Transport, handler: handler, pool: pool, log: log, nodeID: pcfg.NodeID}

	sub, err := pcfg.Transport.AddSubscription(pcfg.IngressChannel, pcfg.IngressStreamID)
	if err != nil {
		return nil, err
	}
	ingressRing, err := ring.New(cfg.RingBufferCapacity)
	if err != nil {
		return nil, err
	}
	p.ingressRing = ingressRing
	p.ingress = newIngressConsumer(sub, ingressRing, cfg.FrameCountLimit, cfg.WriteIdleStrategy, p.isRunning)
	p.ingressWorker = worker.New("ingress", p.ingress.poll, cfg.SubscriberIdleStrategy, p.ingress.close, log)

	terminalRing := ingressRing

	if cfg.ReplicaEnabled {
		replicaRing, err := ring.New(cfg.RingBufferCapacity)
		if err != nil {
			return nil, err
		}
		replicaPub, err := pcfg.Transport.AddPublication(pcfg.ReplicaChannel, pcfg.ReplicaStreamID)
		if err != nil {
			return nil, err
		}
		p.replica = newReplicaStage(terminalRing, replicaRing, replicaPub, cfg.FrameCountLimit, cfg.WriteIdleStrategy, p.isRunning, p.onReplicaFault)
		p.replicaWorker = worker.New("replica", p.replica.poll, cfg.SubscriberIdleStrategy, p.replica.close, log)
		terminalRing = replicaRing
	}

	if cfg.JournalEnabled {
		if pcfg.JournalWriter == nil {
			return nil, newError(ErrCodeUsage, "pipeline: journal_enabled requires a JournalWriter")
		}
		journalRing, err := ring.New(cfg.RingBufferCapacity)
		if err != nil {
			return nil, err
		}
		p.journalStg = newJournalStage(terminalRing, journalRing, pcfg.JournalWriter, cfg.JournalFlushingEnabled, cfg.FrameCountLimit, cfg.WriteIdleStrategy, p.isRunning, p.onJournalFault)
		p.journalWorker = worker.New("journal", p.journalStg.poll, cfg.SubscriberIdleStrategy, p.journalStg.close, log)
		terminalRing = journalRing
	}

	p.service = newServiceStage(terminalRing, handler, cfg.FrameCountLimit)
	p.serviceWorker = worker.New("service", p.service.poll, cfg.SubscriberIdleStrategy, p.service.close, log)

	p.snapshot = newSnapshotTimer(cfg.TickDuration, cfg.TicksPerWheel, cfg.SnapshotInterval, pcfg.NodeID, cfg.SubscriberIdleStrategy, p.ingress, p.isRunning)

	return p, nil
}

func (p *Pipeline) isRunning() bool { return p.running.Load() }

// onJournalFault is invoked by the journal stage when a write or flush
// fails. Per spec.md §7, an I/O fault in the journal surfaces as a close
// request on the journal stage alone; other stages keep running.
func (p *Pipeline) onJournalFault(_ error) {
	if p.journalWorker != nil {
		_ = p.journalWorker.Close()
	}
}

// onReplicaFault is invoked by the replica stage when its publish fails or
// its publication is found closed. Per spec.md §7, a transport-fatal
// condition closes the faulting stage itself rather than being retried
// forever or silently ignored.
func (p *Pipeline) onReplicaFault(_ error) {
	if p.replicaWorker != nil {
		_ = p.replicaWorker.Close()
	}
}

// AddSubscription registers an additional ingress input stream,
// multiplexed into the existing ingress ring, per spec.md §4.4. It must be
// called before Start.
func (p *Pipeline) AddSubscription(channel string, streamID int32) error {
	if pipelineState(p.state.Load()) != pipelineConstructed {
		return newError(ErrCodeUsage, "pipeline: AddSubscription must be called before Start")
	}
	sub, err := p.transport.AddSubscription(channel, streamID)
	if err != nil {
		return err
	}
	p.ingress.addSubscription(sub)
	return nil
}

// AddEndPoint registers a response stream for the service handler, per
// spec.md §4.10's add_end_point. The returned ring is reachable from the
// handler through the pool under key. A ServiceReport pairing the
// pipeline's ingress counters with this endpoint's egress counters is
// recorded and returned.
func (p *Pipeline) AddEndPoint(key, responseChannel string, responseStreamID int32) (*ServiceReport, error) {
	if pipelineState(p.state.Load()) != pipelineConstructed {
		return nil, newError(ErrCodeUsage, "pipeline: AddEndPoint must be called before Start")
	}

	entry, err := p.addProducer(key, responseChannel, responseStreamID, "egress")
	if err != nil {
		return nil, err
	}
	p.egressProducers = append(p.egressProducers, entry)

	report, err := NewServiceReport(key, &p.ingressWorker.Counters, &entry.worker.Counters)
	if err != nil {
		return nil, err
	}
	p.serviceReports = append(p.serviceReports, report)
	return report, nil
}

// AddEventChannel registers an event output stream for the service
// handler, per spec.md §4.10's add_event_channel. Unlike AddEndPoint, no
// ServiceReport is recorded since an event channel has no corresponding
// ingress request stream to pair with; its own RateReport is returned.
func (p *Pipeline) AddEventChannel(key, eventChannel string, eventStreamID int32) (*RateReport, error) {
	if pipelineState(p.state.Load()) != pipelineConstructed {
		return nil, newError(ErrCodeUsage, "pipeline: AddEventChannel must be called before Start")
	}

	entry, err := p.addProducer(key, eventChannel, eventStreamID, "event")
	if err != nil {
		return nil, err
	}
	p.eventProducers = append(p.eventProducers, entry)

	rr := RateReport{Name: key, counters: &entry.worker.Counters}
	return &rr, nil
}

func (p *Pipeline) addProducer(key, channel string, streamID int32, kind string) (*producerEntry, error) {
	r, err := ring.New(p.cfg.RingBufferCapacity)
	if err != nil {
		return nil, err
	}
	pub, err := p.transport.AddPublication(channel, streamID)
	if err != nil {
		return nil, err
	}
	entry := &producerEntry{key: key, ring: r}
	// onFault closes this producer's own worker; entry.worker is set below,
	// before Start ever runs the producer's poll loop, so the closure
	// always observes a non-nil worker by the time a fault can occur.
	ep := newEgressProducer(r, pub, p.cfg.FrameCountLimit, p.cfg.WriteIdleStrategy, p.isRunning, func(error) {
		if entry.worker != nil {
			_ = entry.worker.Close()
		}
	})
	entry.worker = worker.New(fmt.Sprintf("%s-%s", kind, key), ep.poll, p.cfg.SubscriberIdleStrategy, ep.close, p.log)
	p.pool.register(key, r)
	return entry, nil
}

// AvailableAssociationHandler stores h as the handler for a remote
// endpoint's association with a subscription coming up. Nothing in the
// pipeline invokes it: the transport.Transport contract delivers no image
// notifications.
func (p *Pipeline) AvailableAssociationHandler(h AssociationHandler) *Pipeline {
	p.availableHandler = h
	return p
}

// UnavailableAssociationHandler stores h as the handler for a remote
// endpoint's association with a subscription going down. Nothing in the
// pipeline invokes it: the transport.Transport contract delivers no image
// notifications.
func (p *Pipeline) UnavailableAssociationHandler(h AssociationHandler) *Pipeline {
	p.unavailableHandler = h
	return p
}

// Handler returns the pipeline's user handler.
func (p *Pipeline) Handler() Handler { return p.handler }

// ReportList returns a RateReport for every worker the pipeline owns,
// per spec.md §6's report_list.
func (p *Pipeline) ReportList() []RateReport {
	reports := []RateReport{{Name: "ingress", counters: &p.ingressWorker.Counters}}
	if p.replicaWorker != nil {
		reports = append(reports, RateReport{Name: "replica", counters: &p.replicaWorker.Counters})
	}
	if p.journalWorker != nil {
		reports = append(reports, RateReport{Name: "journal", counters: &p.journalWorker.Counters})
	}
	reports = append(reports, RateReport{Name: "service", counters: &p.serviceWorker.Counters})
	for _, e := range p.egressProducers {
		reports = append(reports, RateReport{Name: "egress-" + e.key, counters: &e.worker.Counters})
	}
	for _, e := range p.eventProducers {
		reports = append(reports, RateReport{Name: "event-" + e.key, counters: &e.worker.Counters})
	}
	return reports
}

// ServiceReports returns every ServiceReport recorded by AddEndPoint.
func (p *Pipeline) ServiceReports() []*ServiceReport { return p.serviceReports }

// Start launches every worker from consumer to producer — service →
// journal → replica → egress producers → event producers → ingress
// consumer → timer thread → snapshot timer — per spec.md §4.10, so no
// downstream stage is started after work is admitted. It is a usage error
// to call Start more than once.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(pipelineConstructed), int32(pipelineRunning)) {
		return newError(ErrCodeUsage, "pipeline: already started")
	}
	p.running.Store(true)

	if err := p.serviceWorker.Start(); err != nil {
		return err
	}
	if p.journalWorker != nil {
		if err := p.journalWorker.Start(); err != nil {
			return err
		}
	}
	if p.replicaWorker != nil {
		if err := p.replicaWorker.Start(); err != nil {
			return err
		}
	}
	for _, e := range p.egressProducers {
		if err := e.worker.Start(); err != nil {
			return err
		}
	}
	for _, e := range p.eventProducers {
		if err := e.worker.Start(); err != nil {
			return err
		}
	}
	if err := p.ingressWorker.Start(); err != nil {
		return err
	}

	p.snapshot.start()

	return nil
}

// Close reverses Start: stop the snapshot timer, stop the timer thread,
// then close stages in producer-to-consumer order — ingress, event
// producers, egress producers, replica, journal, service — so each drain
// target is still live when its upstream shuts down, per spec.md §4.10.
// Close is idempotent; a second call is a no-op.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.running.Store(false)
		p.state.Store(int32(pipelineClosed))

		p.snapshot.stop()

		p.quietClose(p.ingressWorker)
		for _, e := range p.eventProducers {
			p.quietClose(e.worker)
		}
		for _, e := range p.egressProducers {
			p.quietClose(e.worker)
		}
		if p.replicaWorker != nil {
			p.quietClose(p.replicaWorker)
		}
		if p.journalWorker != nil {
			p.quietClose(p.journalWorker)
		}
		p.quietClose(p.serviceWorker)
	})
	return p.closeErr
}

// quietClose closes w and logs rather than propagates a failure, per
// spec.md §7's "close() performs quiet-close on every owned resource".
func (p *Pipeline) quietClose(w *worker.Worker) {
	if err := w.Close(); err != nil {
		fmt.Fprintf(p.log, "pipeline: close %s: %v\n", w.Name, err)
	}
}
