// Package loopback provides an in-process transport.Transport
// implementation for tests and the demonstration binary: publications on
// a channel/stream write directly into a bounded Go channel that the
// matching subscription polls from. It stands in for spec.md's "out of
// scope" reliable transport so the pipeline can be exercised end to end
// without a real network stack.
//
// Structured after agilira/lethe's buffered, single-writer-fast-path
// design (buffer.go): a plain channel takes the place of lethe's MPSC ring
// since loopback only needs to satisfy transport.Transport, not be the
// pipeline's own hot-path ring.
package loopback

import (
	"sync"

	"github.com/canepat/helios/transport"
)

type message struct {
	msgTypeID int32
	payload   []byte
	sessionID int32
}

// Transport is a process-local transport.Transport. Publications and
// subscriptions on the same (channel, streamID) pair are connected
// automatically; AddSubscription/AddPublication may be called in either
// order.
type Transport struct {
	mu     sync.Mutex
	queues map[key]chan message
}

type key struct {
	channel  string
	streamID int32
}

// New creates an empty loopback transport.
func New() *Transport {
	return &Transport{queues: make(map[key]chan message)}
}

func (t *Transport) queue(channel string, streamID int32) chan message {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{channel, streamID}
	q, ok := t.queues[k]
	if !ok {
		q = make(chan message, 4096)
		t.queues[k] = q
	}
	return q
}

// AddSubscription returns a subscription polling the given channel/stream.
func (t *Transport) AddSubscription(channel string, streamID int32) (transport.Subscription, error) {
	return &subscription{q: t.queue(channel, streamID)}, nil
}

// AddPublication returns a publication writing onto the given
// channel/stream.
func (t *Transport) AddPublication(channel string, streamID int32) (transport.Publication, error) {
	return &publication{q: t.queue(channel, streamID), streamID: streamID}, nil
}

type subscription struct {
	q      chan message
	closed bool
}

func (s *subscription) Poll(handler transport.FragmentHandler, limit int) (int, error) {
	if s.closed {
		return 0, transport.ErrClosed
	}
	n := 0
	for n < limit {
		select {
		case m := <-s.q:
			handler(m.msgTypeID, m.payload, m.sessionID, transport.FlagBegin|transport.FlagEnd)
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func (s *subscription) Close() error {
	s.closed = true
	return nil
}

type publication struct {
	q        chan message
	streamID int32
	closed   bool
}

func (p *publication) Offer(buf []byte, offset, length int) (int64, error) {
	if p.closed {
		return transport.Closed, transport.ErrClosed
	}
	payload := make([]byte, length)
	copy(payload, buf[offset:offset+length])

	select {
	case p.q <- message{msgTypeID: 0, payload: payload, sessionID: p.streamID}:
		return int64(length), nil
	default:
		return transport.BackPressured, nil
	}
}

func (p *publication) Close() error {
	p.closed = true
	return nil
}
