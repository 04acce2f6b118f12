package helios

import (
	"sync"

	herrors "github.com/agilira/go-errors"
	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/ring"
	"github.com/canepat/helios/transport"
)

// egressProducer drains one output ring and publishes onto one transport
// stream, per spec.md §4.5. Each instance is bound to exactly one stream
// at construction.
type egressProducer struct {
	src     *ring.RingBuffer
	pub     transport.Publication
	limit   int
	idle    idlestrategy.IdleStrategy
	running func() bool

	// onFault is invoked at most once, per spec.md §7's "transport fatal:
	// stage closes itself", when a publish fails or the publication is
	// found closed. It runs on its own goroutine since the egress
	// producer's own worker goroutine cannot join itself mid-poll.
	onFault  func(error)
	faultOne sync.Once
}

func newEgressProducer(src *ring.RingBuffer, pub transport.Publication, limit int, idle idlestrategy.IdleStrategy, running func() bool, onFault func(error)) *egressProducer {
	return &egressProducer{src: src, pub: pub, limit: limit, idle: idle, running: running, onFault: onFault}
}

func (p *egressProducer) poll() (int, error) {
	count := 0
	p.src.Read(p.limit, func(msgTypeID int32, buf []byte) {
		p.publish(transport.EncodeFrame(msgTypeID, buf))
		count++
	})
	return count, nil
}

// publish retries transient backpressure codes under the idle strategy and
// treats a closed publication or a publish error as transport-fatal, per
// spec.md §7, closing the egress producer's own worker rather than
// silently dropping the record on the floor.
func (p *egressProducer) publish(buf []byte) {
	for p.running() {
		pos, err := p.pub.Offer(buf, 0, len(buf))
		if err != nil {
			p.fault(wrapError(err, ErrCodeTransportFatal, "egress: publish failed"))
			return
		}
		if pos >= 0 {
			return
		}
		if pos == transport.Closed {
			p.fault(newError(ErrCodeTransportFatal, "egress: publication closed"))
			return
		}
		p.idle.Idle(0)
	}
}

func (p *egressProducer) fault(err *herrors.Error) {
	handleError(err)
	p.faultOne.Do(func() {
		if p.onFault != nil {
			go p.onFault(err)
		}
	})
}

func (p *egressProducer) close() error {
	return p.pub.Close()
}
