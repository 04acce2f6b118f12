package transport

// Reassembler reassembles fragmented messages for a single subscription.
// Per spec.md §9's recommendation on the "poll-loop cost of fragment
// reassembly" open question, one Reassembler is owned by exactly one
// Ingress Consumer poll loop and keyed internally by session id, so
// fragment boundaries from different remote images are never mixed even
// when multiplexed onto the same destination ring. State is never shared
// across goroutines.
type Reassembler struct {
	sessions map[int32]*partial
}

type partial struct {
	msgTypeID int32
	buf       []byte
}

// NewReassembler creates an empty, session-keyed reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{sessions: make(map[int32]*partial)}
}

// Offer feeds one fragment into the reassembler. It returns the message
// type, the complete message and true once the final fragment of a
// message arrives; otherwise it buffers the fragment and returns
// (0, nil, false).
func (r *Reassembler) Offer(msgTypeID int32, fragment []byte, sessionID int32, flags FragmentFlags) (msgType int32, complete []byte, ok bool) {
	if flags.Unfragmented() {
		return msgTypeID, fragment, true
	}

	if flags&FlagBegin != 0 {
		buf := make([]byte, len(fragment))
		copy(buf, fragment)
		r.sessions[sessionID] = &partial{msgTypeID: msgTypeID, buf: buf}
		return 0, nil, false
	}

	p, found := r.sessions[sessionID]
	if !found {
		// A middle/end fragment arrived with no matching begin; the
		// transport guarantees in-order fragments per stream, so this
		// indicates a session that started before this consumer's
		// lifetime. Drop it rather than deliver a partial record.
		return 0, nil, false
	}
	p.buf = append(p.buf, fragment...)

	if flags&FlagEnd != 0 {
		delete(r.sessions, sessionID)
		return p.msgTypeID, p.buf, true
	}
	return 0, nil, false
}
