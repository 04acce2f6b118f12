package helios

import (
	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/ring"
	"github.com/canepat/helios/transport"
)

// subscriptionState pairs one transport.Subscription with its own
// reassembler. Per spec.md §4.4's "fragment reassembly state is owned by
// the worker and never shared" and §9's open-question resolution (one
// reassembler per subscription, keyed by session), each multiplexed
// subscription gets an independent reassembler rather than sharing the
// consumer's.
type subscriptionState struct {
	sub         transport.Subscription
	reassembler *transport.Reassembler
}

// ingressConsumer drains one or more transport subscriptions into a single
// destination ring, per spec.md §4.4. Multiple subscriptions may be
// multiplexed onto the same ring because they are all polled from this one
// worker goroutine, preserving the ring's single-writer invariant; order
// across subscriptions is unspecified, order within one subscription is
// preserved.
type ingressConsumer struct {
	subs       []*subscriptionState
	dest       *ring.RingBuffer
	frameLimit int
	writeIdle  idlestrategy.IdleStrategy
	running    func() bool
}

func newIngressConsumer(sub transport.Subscription, dest *ring.RingBuffer, frameLimit int, writeIdle idlestrategy.IdleStrategy, running func() bool) *ingressConsumer {
	c := &ingressConsumer{dest: dest, frameLimit: frameLimit, writeIdle: writeIdle, running: running}
	c.addSubscription(sub)
	return c
}

// addSubscription registers an additional input stream, per spec.md §4.4's
// add_subscription. Callers must not invoke this concurrently with poll;
// it is a usage error to call it once the owning worker has started.
func (c *ingressConsumer) addSubscription(sub transport.Subscription) {
	c.subs = append(c.subs, &subscriptionState{sub: sub, reassembler: transport.NewReassembler()})
}

// poll reassembles up to frameLimit fragments per subscription and writes
// each completed record to dest, per spec.md §4.4's poll step.
func (c *ingressConsumer) poll() (int, error) {
	written := 0
	var pollErr error
	for _, s := range c.subs {
		_, err := s.sub.Poll(func(msgTypeID int32, buf []byte, sessionID int32, flags transport.FragmentFlags) {
			_, complete, ok := s.reassembler.Offer(msgTypeID, buf, sessionID, flags)
			if !ok {
				return
			}
			// The transport contract carries no type-id parameter on
			// Offer (spec.md §6), so the real message type travels as a
			// transport.EncodeFrame header inside the reassembled bytes
			// rather than in the per-fragment msgTypeID the transport
			// itself supplies.
			decodedType, payload, frameOK := transport.DecodeFrame(complete)
			if !frameOK {
				handleError(newError(ErrCodeUsage, "ingress: malformed frame"))
				return
			}
			c.writeRecord(decodedType, payload)
			written++
		}, c.frameLimit)
		if err != nil {
			pollErr = err
		}
	}
	return written, pollErr
}

// writeRecord retries on ring-full under the configured idle strategy;
// per spec.md §9's resolution of the ring-full-at-close open question, the
// retry loop rechecks running so shutdown is never blocked on a record
// that will never drain.
func (c *ingressConsumer) writeRecord(msgTypeID int32, payload []byte) {
	for c.running() {
		ok, err := c.dest.Write(msgTypeID, payload, 0, len(payload))
		if err != nil {
			handleError(wrapError(err, ErrCodeUsage, "ingress: invalid record"))
			return
		}
		if ok {
			return
		}
		c.writeIdle.Idle(0)
	}
}

// injectAdmin writes an administrative record directly to the ingress
// ring, used by the snapshot timer for SAVE_SNAPSHOT/LOAD_SNAPSHOT.
func (c *ingressConsumer) injectAdmin(msgTypeID int32, payload []byte) {
	c.writeRecord(msgTypeID, payload)
}

func (c *ingressConsumer) close() error {
	var firstErr error
	for _, s := range c.subs {
		if err := s.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
