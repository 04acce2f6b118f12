package helios

import "github.com/canepat/helios/internal/ring"

// serviceStage reads from the terminal input ring and invokes the user
// handler exactly once per record in arrival order, per spec.md §4.8. A
// handler fault is logged and the loop continues with the next record;
// the stage never retries a handler call.
type serviceStage struct {
	src     *ring.RingBuffer
	handler Handler
	limit   int
}

func newServiceStage(src *ring.RingBuffer, handler Handler, limit int) *serviceStage {
	return &serviceStage{src: src, handler: handler, limit: limit}
}

func (s *serviceStage) poll() (int, error) {
	count := 0
	s.src.Read(s.limit, func(msgTypeID int32, buf []byte) {
		_ = safeExecute(func() error {
			s.handler.OnMessage(msgTypeID, buf, 0, len(buf))
			return nil
		}, "service.OnMessage")
		count++
	})
	return count, nil
}

func (s *serviceStage) close() error { return nil }
