// Package ring implements the bounded, lock-free, single-producer
// single-consumer byte ring described in spec.md §4.1: a power-of-two byte
// region carrying framed records (4-byte message-type id, 4-byte length,
// payload), with release/acquire cursors and Aeron-style end-of-buffer
// padding records so a record is never split across the wrap point.
//
// The cursor/claim shape is adapted from agilira/iris's
// internal/zephyroslite.ZephyrosLight (producer/consumer cursor pair,
// cache-line padded, Write/ProcessBatch/LoopProcess split), generalized
// from a generic-T MPSC ring to a byte-framed SPSC ring. Each Write and
// Read loads both the producer and the consumer cursor; neither side
// caches the opposite cursor.
package ring

import (
	"encoding/binary"
	"errors"

	"github.com/canepat/helios/internal/xatomic"
)

const (
	// HeaderLength is the size in bytes of a record's framing header:
	// a 4-byte little-endian message-type id followed by a 4-byte
	// little-endian payload length.
	HeaderLength = 8

	// alignment is the byte boundary every record (header+payload) is
	// padded up to, matching the spec's "aligned(header + length)"
	// reservation rule.
	alignment = 8

	// PaddingMsgTypeID is the reserved message-type id used internally
	// by the ring to mark an end-of-buffer padding record. It is never
	// observable by Write callers (0 and negative ids are rejected) or
	// delivered to Read callbacks.
	PaddingMsgTypeID int32 = 0
)

var (
	// ErrInvalidCapacity is returned when the requested capacity is not
	// a positive power of two.
	ErrInvalidCapacity = errors.New("ring: capacity must be a positive power of two")
	// ErrInvalidMsgTypeID is returned when Write is called with a
	// reserved (<=0) message-type id.
	ErrInvalidMsgTypeID = errors.New("ring: message-type id must be positive")
	// ErrInvalidLength is returned when Write is called with a
	// non-positive length.
	ErrInvalidLength = errors.New("ring: length must be positive")
	// ErrRecordTooLarge is returned when a record's payload is longer than
	// MaxMessageLength (one eighth of the ring's capacity).
	ErrRecordTooLarge = errors.New("ring: record exceeds maximum message length")
)

func align(v int32) int32 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// RingBuffer is a bounded SPSC byte queue of framed records. Exactly one
// writer goroutine and one reader goroutine may use an instance for its
// lifetime; any other usage pattern is a design bug per spec.md §3.
type RingBuffer struct {
	buffer   []byte
	capacity int32
	mask     int32

	producer xatomic.PaddedInt64 // advanced by the writer, release-ordered
	consumer xatomic.PaddedInt64 // advanced by the reader, release-ordered

	maxMessageLength int32
}

// New creates a ring buffer of the given power-of-two capacity in bytes.
func New(capacity int32) (*RingBuffer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer{
		buffer:           make([]byte, capacity),
		capacity:         capacity,
		mask:             capacity - 1,
		maxMessageLength: capacity / 8,
	}, nil
}

// Capacity returns the ring's total byte capacity.
func (r *RingBuffer) Capacity() int64 { return int64(r.capacity) }

// Size returns the number of bytes currently published but not yet
// consumed. This includes any padding records not yet skipped by the
// reader.
func (r *RingBuffer) Size() int64 {
	return r.producer.Load() - r.consumer.Load()
}

// MaxMessageLength returns the largest payload length Write will ever
// accept for this ring.
func (r *RingBuffer) MaxMessageLength() int32 { return r.maxMessageLength }

// Write reserves and publishes one record. It returns (true, nil) on
// success, (false, nil) when the ring currently lacks room (the caller
// should retry under its idle strategy — this is backpressure, not an
// error), and a non-nil error for usage violations (reserved message-type
// id, non-positive length, or a payload longer than MaxMessageLength).
func (r *RingBuffer) Write(msgTypeID int32, src []byte, offset, length int) (bool, error) {
	if msgTypeID <= 0 {
		return false, ErrInvalidMsgTypeID
	}
	if length <= 0 {
		return false, ErrInvalidLength
	}
	if int32(length) > r.maxMessageLength {
		return false, ErrRecordTooLarge
	}

	recordLength := align(int32(HeaderLength + length))

	producer := r.producer.Load()
	consumer := r.consumer.Load()
	used := producer - consumer

	index := int32(producer & int64(r.mask))
	toEnd := r.capacity - index

	var required int64
	wraps := recordLength > toEnd
	if wraps {
		required = int64(toEnd) + int64(recordLength)
	} else {
		required = int64(recordLength)
	}

	if used+required > int64(r.capacity) {
		return false, nil
	}

	writeIndex := index
	if wraps {
		if toEnd > 0 {
			r.writeHeader(index, PaddingMsgTypeID, int(toEnd-HeaderLength))
		}
		writeIndex = 0
	}

	r.writeHeader(writeIndex, msgTypeID, length)
	copy(r.buffer[writeIndex+HeaderLength:writeIndex+HeaderLength+int32(length)], src[offset:offset+length])

	r.producer.Store(producer + required)
	return true, nil
}

// RecordHandler is invoked once per delivered record. buf aliases the
// ring's internal storage and is only valid for the duration of the call.
type RecordHandler func(msgTypeID int32, buf []byte)

// Read delivers up to limit records (padding records are skipped and do
// not count against limit) starting at the consumer cursor, advancing the
// cursor with release ordering after each delivered or skipped record. It
// returns the number of bytes consumed.
func (r *RingBuffer) Read(limit int, handler RecordHandler) int64 {
	consumer := r.consumer.Load()
	producer := r.producer.Load()

	var bytesRead int64
	delivered := 0
	for delivered < limit && consumer+bytesRead < producer {
		index := int32((consumer + bytesRead) & int64(r.mask))
		msgTypeID, length := r.readHeader(index)
		frame := int64(align(int32(HeaderLength + length)))
		bytesRead += frame

		if msgTypeID == PaddingMsgTypeID {
			r.consumer.Store(consumer + bytesRead)
			continue
		}

		handler(msgTypeID, r.buffer[index+HeaderLength:index+HeaderLength+int32(length)])
		delivered++
		r.consumer.Store(consumer + bytesRead)
	}

	return bytesRead
}

func (r *RingBuffer) writeHeader(index int32, msgTypeID int32, length int) {
	binary.LittleEndian.PutUint32(r.buffer[index:index+4], uint32(msgTypeID))
	binary.LittleEndian.PutUint32(r.buffer[index+4:index+8], uint32(length))
}

func (r *RingBuffer) readHeader(index int32) (msgTypeID int32, length int) {
	msgTypeID = int32(binary.LittleEndian.Uint32(r.buffer[index : index+4]))
	length = int(binary.LittleEndian.Uint32(r.buffer[index+4 : index+8]))
	return
}
