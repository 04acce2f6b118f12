package helios

import (
	"sync"

	herrors "github.com/agilira/go-errors"
	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/ring"
	"github.com/canepat/helios/transport"
)

// replicaStage copies records flowing out of the ingress ring to a
// replica stream, then forwards them locally, per spec.md §4.6. The
// forward happens synchronously after the replicate publish completes, so
// a record is never enqueued downstream before it has been replicated; a
// record whose replicate publish failed is never forwarded at all.
type replicaStage struct {
	src       *ring.RingBuffer
	dest      *ring.RingBuffer
	pub       transport.Publication
	limit     int
	writeIdle idlestrategy.IdleStrategy
	running   func() bool

	// onFault is invoked at most once, per spec.md §7's "transport fatal:
	// stage closes itself", when the replica publish fails or the
	// publication is found closed. It runs on its own goroutine since the
	// replica stage's own worker goroutine cannot join itself mid-poll.
	onFault  func(error)
	faultOne sync.Once
}

func newReplicaStage(src, dest *ring.RingBuffer, pub transport.Publication, limit int, writeIdle idlestrategy.IdleStrategy, running func() bool, onFault func(error)) *replicaStage {
	return &replicaStage{src: src, dest: dest, pub: pub, limit: limit, writeIdle: writeIdle, running: running, onFault: onFault}
}

func (s *replicaStage) poll() (int, error) {
	count := 0
	s.src.Read(s.limit, func(msgTypeID int32, buf []byte) {
		if !s.replicate(msgTypeID, buf) {
			return
		}
		s.forward(msgTypeID, buf)
		count++
	})
	return count, nil
}

// replicate offers the record to the replica stream using the same
// transport.EncodeFrame convention as egress, so a replica reader can
// recover msgTypeID the same way an ingress consumer does. It returns
// false on a transport-fatal condition, in which case the caller must not
// forward the record downstream.
func (s *replicaStage) replicate(msgTypeID int32, buf []byte) bool {
	frame := transport.EncodeFrame(msgTypeID, buf)
	for s.running() {
		pos, err := s.pub.Offer(frame, 0, len(frame))
		if err != nil {
			s.fault(wrapError(err, ErrCodeTransportFatal, "replica: publish failed"))
			return false
		}
		if pos >= 0 {
			return true
		}
		if pos == transport.Closed {
			s.fault(newError(ErrCodeTransportFatal, "replica: publication closed"))
			return false
		}
		s.writeIdle.Idle(0)
	}
	return false
}

func (s *replicaStage) fault(err *herrors.Error) {
	handleError(err)
	s.faultOne.Do(func() {
		if s.onFault != nil {
			go s.onFault(err)
		}
	})
}

func (s *replicaStage) forward(msgTypeID int32, buf []byte) {
	for s.running() {
		ok, err := s.dest.Write(msgTypeID, buf, 0, len(buf))
		if err != nil {
			handleError(wrapError(err, ErrCodeUsage, "replica: invalid record"))
			return
		}
		if ok {
			return
		}
		s.writeIdle.Idle(0)
	}
}

func (s *replicaStage) close() error {
	return s.pub.Close()
}
