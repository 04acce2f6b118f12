package helios

import "github.com/canepat/helios/transport"

// Handler is the user-supplied business logic invoked once per record in
// arrival order by the Service Stage, per spec.md §4.8. Implementations
// must not block indefinitely; a blocking call stalls the whole pipeline.
type Handler interface {
	OnMessage(msgTypeID int32, buf []byte, offset, length int)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(msgTypeID int32, buf []byte, offset, length int)

// OnMessage calls f.
func (f HandlerFunc) OnMessage(msgTypeID int32, buf []byte, offset, length int) {
	f(msgTypeID, buf, offset, length)
}

// AssociationHandler is the callback type for a remote endpoint's
// association with a subscription coming up or going down, per spec.md
// §9's "small capability set" design note. A nil handler is a valid no-op.
// The pipeline stores these handlers but never invokes them, since the
// transport.Transport contract delivers no image notifications.
type AssociationHandler func(image transport.Image)
