package helios

import (
	"sync"

	"github.com/canepat/helios/internal/idlestrategy"
	"github.com/canepat/helios/internal/ring"
	"github.com/canepat/helios/journal"
)

// journalStage persists records through a journal.Writer before forwarding
// them locally, per spec.md §4.7. It reads from the replica's output ring
// when replication is also enabled, otherwise directly from the ingress
// ring, guaranteeing every record is journaled only after it has been
// published to the replica stream.
type journalStage struct {
	src            *ring.RingBuffer
	dest           *ring.RingBuffer
	writer         journal.Writer
	flushEachBatch bool
	limit          int
	writeIdle      idlestrategy.IdleStrategy
	running        func() bool

	// onFault is invoked at most once, per spec.md §7's "I/O fault in
	// journal surfaced as a close request on the journal stage", when a
	// write or flush fails. It runs on its own goroutine since the
	// journal stage's own worker goroutine cannot call Close on itself
	// without deadlocking on its own join.
	onFault  func(error)
	faultOne sync.Once
}

func newJournalStage(src, dest *ring.RingBuffer, writer journal.Writer, flushEachBatch bool, limit int, writeIdle idlestrategy.IdleStrategy, running func() bool, onFault func(error)) *journalStage {
	return &journalStage{
		src:            src,
		dest:           dest,
		writer:         writer,
		flushEachBatch: flushEachBatch,
		limit:          limit,
		writeIdle:      writeIdle,
		running:        running,
		onFault:        onFault,
	}
}

func (s *journalStage) poll() (int, error) {
	count := 0
	var writeErr error
	s.src.Read(s.limit, func(msgTypeID int32, buf []byte) {
		if writeErr != nil {
			return
		}
		if _, err := s.writer.Write(buf, 0, len(buf)); err != nil {
			writeErr = err
			return
		}
		s.forward(msgTypeID, buf)
		count++
	})
	if writeErr != nil {
		s.fault(writeErr)
		return count, writeErr
	}
	if s.flushEachBatch && count > 0 {
		if err := s.writer.Flush(); err != nil {
			s.fault(err)
			return count, err
		}
	}
	return count, nil
}

func (s *journalStage) fault(err error) {
	handleError(wrapError(err, ErrCodeJournalIO, "journal: I/O fault"))
	s.faultOne.Do(func() {
		if s.onFault != nil {
			go s.onFault(err)
		}
	})
}

func (s *journalStage) forward(msgTypeID int32, buf []byte) {
	for s.running() {
		ok, err := s.dest.Write(msgTypeID, buf, 0, len(buf))
		if err != nil {
			handleError(wrapError(err, ErrCodeUsage, "journal: invalid record"))
			return
		}
		if ok {
			return
		}
		s.writeIdle.Idle(0)
	}
}

func (s *journalStage) close() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.writer.Close()
}
