// Package transport defines the external contract the service pipeline
// consumes from the underlying reliable, ordered, fragmented publish/
// subscribe transport, per spec.md §6. The transport implementation
// itself (wire protocol, flow control, reconnection) is out of scope —
// only the interface the core polls/offers against is specified here.
package transport

import "errors"

// Offer/Poll status codes, mirrored from spec.md §7's transport-transient
// and transport-fatal error kinds. Non-negative Offer results are success
// positions.
const (
	BackPressured int64 = -1
	NotConnected  int64 = -2
	AdminAction   int64 = -3
	Closed        int64 = -4
)

// ErrClosed is returned by Poll/Offer once the underlying endpoint has
// been closed.
var ErrClosed = errors.New("transport: endpoint closed")

// Image identifies one remote publisher associated with a subscription.
type Image interface {
	SessionID() int32
	StreamID() int32
}

// AvailableImageHandler is notified when an association with a remote
// endpoint comes up.
type AvailableImageHandler func(Image)

// UnavailableImageHandler is notified when an association with a remote
// endpoint goes down.
type UnavailableImageHandler func(Image)

// FragmentFlags marks a fragment's position within its reassembled
// message.
type FragmentFlags uint8

const (
	// FlagBegin marks the first fragment of a message.
	FlagBegin FragmentFlags = 1 << iota
	// FlagEnd marks the last fragment of a message.
	FlagEnd
)

// Unfragmented reports whether flags mark a complete, single-fragment
// message.
func (f FragmentFlags) Unfragmented() bool { return f&(FlagBegin|FlagEnd) == (FlagBegin | FlagEnd) }

// FragmentHandler is invoked once per fragment received from a poll.
// sessionID identifies the originating image for reassembly.
type FragmentHandler func(msgTypeID int32, buf []byte, sessionID int32, flags FragmentFlags)

// Subscription polls one transport stream for fragments.
type Subscription interface {
	// Poll delivers up to limit fragments to handler and returns the
	// number delivered.
	Poll(handler FragmentHandler, limit int) (int, error)
	Close() error
}

// Publication publishes records onto one transport stream.
type Publication interface {
	// Offer publishes buf[offset:offset+length]. A non-negative result
	// is a success position; BackPressured/NotConnected/AdminAction are
	// transient and should be retried; Closed is fatal.
	Offer(buf []byte, offset, length int) (int64, error)
	Close() error
}

// Transport is the factory surface the pipeline uses to acquire
// subscriptions and publications, per spec.md §6.
type Transport interface {
	AddSubscription(channel string, streamID int32) (Subscription, error)
	AddPublication(channel string, streamID int32) (Publication, error)
}
