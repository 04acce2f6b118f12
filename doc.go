// Package helios implements the core of a low-latency, in-process
// message-processing pipeline: a fixed chain of single-producer/
// single-consumer ring buffers wired together by dedicated worker
// goroutines that implement replication, journaling, and application
// processing, plus the supervisory timer that injects periodic snapshot
// markers into the pipeline.
//
// # Quick start
//
// A minimal echo pipeline over the in-process loopback transport:
//
//	tp := loopback.New()
//	p, err := helios.New(helios.PipelineConfig{
//		Transport:       tp,
//		IngressChannel:  "loop",
//		IngressStreamID: 1,
//	}, func(pool *helios.RingBufferPool) helios.Handler {
//		return helios.HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
//			if r, ok := pool.Get("echo"); ok {
//				r.Write(msgTypeID, buf, offset, length)
//			}
//		})
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	p.AddEndPoint("echo", "loop", 2)
//	if err := p.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
package helios
