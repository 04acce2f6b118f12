// Command heliosd runs a standalone helios pipeline over the in-process
// loopback transport with a file-backed journal, echoing every application
// record it receives back onto a response stream.
//
// Configuration loading and a real transport are explicitly out of scope
// per spec.md §1; this binary exists to exercise the pipeline end to end,
// not to be a production deployment target. Flags are parsed with the
// standard library flag package: this is the one deliberate stdlib
// exception in this module, isolated to this peripheral entrypoint (see
// SPEC_FULL.md §8 for why github.com/agilira/flash-flags could not be
// wired without fabricating its API).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canepat/helios"
	"github.com/canepat/helios/journal/filejournal"
	"github.com/canepat/helios/transport/loopback"
)

func main() {
	journalPath := flag.String("journal", "", "journal file path; empty disables journaling")
	journalMaxSize := flag.String("journal-max-size", "64MB", "journal segment rotation size")
	snapshotInterval := flag.Duration("snapshot-interval", 0, "snapshot injection interval; 0 disables")
	nodeID := flag.Uint("node-id", 1, "node id carried in administrative records")
	flag.Parse()

	cfg := helios.Config{
		JournalEnabled:   *journalPath != "",
		SnapshotInterval: *snapshotInterval,
	}

	pcfg := helios.PipelineConfig{
		Config:          cfg,
		IngressChannel:  "heliosd",
		IngressStreamID: 1,
		NodeID:          uint16(*nodeID),
		Log:             os.Stderr,
	}

	tp := loopback.New()
	pcfg.Transport = tp

	if cfg.JournalEnabled {
		jw, err := filejournal.Open(filejournal.Config{
			Filename: *journalPath,
			MaxSize:  *journalMaxSize,
		})
		if err != nil {
			log.Fatalf("heliosd: open journal: %v", err)
		}
		pcfg.JournalWriter = jw
	}

	pipeline, err := helios.New(pcfg, func(pool *helios.RingBufferPool) helios.Handler {
		return helios.HandlerFunc(func(msgTypeID int32, buf []byte, offset, length int) {
			if helios.IsAdministrative(msgTypeID) {
				return
			}
			if r, ok := pool.Get("echo"); ok {
				_, _ = r.Write(msgTypeID, buf, offset, length)
			}
		})
	})
	if err != nil {
		log.Fatalf("heliosd: construct pipeline: %v", err)
	}

	if _, err := pipeline.AddEndPoint("echo", "heliosd", 2); err != nil {
		log.Fatalf("heliosd: add endpoint: %v", err)
	}

	if err := pipeline.Start(); err != nil {
		log.Fatalf("heliosd: start: %v", err)
	}
	fmt.Fprintln(os.Stderr, "heliosd: pipeline running, press Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "heliosd: shutting down")
	shutdownStart := time.Now()
	if err := pipeline.Close(); err != nil {
		log.Fatalf("heliosd: close: %v", err)
	}
	fmt.Fprintf(os.Stderr, "heliosd: stopped in %s\n", time.Since(shutdownStart))
}
