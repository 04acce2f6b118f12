package transport

import "encoding/binary"

// FrameHeaderLength is the size of the wire-level framing header this
// module's Transport implementations use to carry a message-type id
// across an otherwise payload-opaque Offer/Poll boundary. spec.md §6
// defines Publication.Offer(buffer, offset, length) with no separate
// type-id parameter, yet Subscription.Poll's FragmentHandler receives
// one — so a real transport must encode msgTypeID into the bytes that
// cross the wire somehow. EncodeFrame/DecodeFrame fix that convention for
// any Transport implementation in this module: a 4-byte little-endian
// message-type id, a 4-byte little-endian payload length, then the
// payload itself.
const FrameHeaderLength = 8

// EncodeFrame wraps payload in the wire-framing header.
func EncodeFrame(msgTypeID int32, payload []byte) []byte {
	buf := make([]byte, FrameHeaderLength+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(msgTypeID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[FrameHeaderLength:], payload)
	return buf
}

// DecodeFrame extracts the message-type id and payload from a frame built
// by EncodeFrame. ok is false when buf is too short or its declared
// length does not fit.
func DecodeFrame(buf []byte) (msgTypeID int32, payload []byte, ok bool) {
	if len(buf) < FrameHeaderLength {
		return 0, nil, false
	}
	msgTypeID = int32(binary.LittleEndian.Uint32(buf[0:4]))
	length := int(binary.LittleEndian.Uint32(buf[4:8]))
	if length < 0 || FrameHeaderLength+length > len(buf) {
		return 0, nil, false
	}
	return msgTypeID, buf[FrameHeaderLength : FrameHeaderLength+length], true
}
