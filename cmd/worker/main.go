// dicomflow worker - standalone process hosting a persistent storage
// listener Job: the C-STORE receiver that accumulates incoming instances
// and periodically drains them into the configured Store (spec.md §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nuulab/dicomflow/pkg/events"
	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/progress"
	"github.com/nuulab/dicomflow/pkg/scheduler"
	"github.com/nuulab/dicomflow/pkg/server"
	"github.com/nuulab/dicomflow/pkg/store"
)

func main() {
	port := flag.Int("port", 11112, "port to accept incoming C-STORE associations on")
	aeTitle := flag.String("ae-title", "DICOMFLOW", "AE title this listener answers to")
	dbFilename := flag.String("db", "dicomflow.db", "DICOM database filename reported to the Store")
	batchFlushMs := flag.Int("batch-flush-ms", 5000, "how often accumulated instances are drained into the Store")
	flag.Parse()

	if envPort := os.Getenv("DICOMFLOW_LISTENER_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	registry := server.NewRegistry()
	mem := store.NewMemStore(*dbFilename)
	deps := job.WorkerDeps{
		NewOperation: func() operation.Operation { return operation.NewMock() },
		Store:        mem,
	}
	sch := scheduler.New(4, registry, deps, events.NewBus(), progress.NewTracker(), scheduler.NewDLQ(0))

	listenerJob := sch.StartListener(&job.ListenerPayload{
		Port:                 *port,
		AETitle:              *aeTitle,
		BatchFlushIntervalMs: *batchFlushMs,
	})
	log.Info().Str("ae_title", *aeTitle).Int("port", *port).Str("job_id", listenerJob.ID()).Msg("storage listener started")

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down worker")
		sch.StopAll(true) // full teardown: stop the persistent listener job too
		cancel()
	}()

	<-ctx.Done()
	log.Info().Msg("worker stopped")
}
