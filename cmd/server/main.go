// dicomflow server - standalone DICOM job scheduler API process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nuulab/dicomflow/pkg/api"
	"github.com/nuulab/dicomflow/pkg/events"
	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/progress"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/scheduler"
	"github.com/nuulab/dicomflow/pkg/server"
	"github.com/nuulab/dicomflow/pkg/store"
)

func main() {
	port := flag.Int("port", 8080, "API server port")
	redisAddr := flag.String("redis", "", "Redis address for durable event history (optional)")
	maxThreads := flag.Int("max-threads", 8, "maximum concurrently running jobs across all classes")
	dbFilename := flag.String("db", "dicomflow.db", "DICOM database filename reported to the Store")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	if envPort := os.Getenv("DICOMFLOW_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}
	if envRedis := os.Getenv("DICOMFLOW_REDIS"); envRedis != "" {
		*redisAddr = envRedis
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	printBanner()

	registry := server.NewRegistry()

	var bus *events.Bus
	var dlq *scheduler.DLQ
	var rdb *redis.Client
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Str("addr", *redisAddr).Msg("redis connection failed, continuing without durable event history")
			rdb = nil
		} else {
			log.Info().Str("addr", *redisAddr).Msg("connected to redis")
		}
	}
	bus = events.NewBus()
	if rdb != nil {
		redisStore := events.NewRedisStore(rdb, "dicomflow")
		go mirrorToRedis(bus, redisStore)
	}

	dlq = scheduler.NewDLQ(0)
	dlq.AddAlerter(&scheduler.LogAlerter{Logf: func(format string, args ...any) {
		log.Error().Msgf(format, args...)
	}})

	tracker := progress.NewTracker()
	mem := store.NewMemStore(*dbFilename)

	deps := job.WorkerDeps{
		NewOperation: func() operation.Operation { return operation.NewMock() },
		Store:        mem,
	}

	sch := scheduler.New(*maxThreads, registry, deps, bus, tracker, dlq)

	apiServer := api.NewServer(api.Config{Scheduler: sch})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		apiServer.Stop(context.Background())
		if rdb != nil {
			rdb.Close()
		}
	}()

	log.Info().Int("port", *port).Int("max_threads", *maxThreads).Msg("starting dicomflow server")
	if err := apiServer.Start(*port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}

	<-ctx.Done()
}

// mirrorToRedis subscribes to bus and appends every job_detail-carrying
// event to the durable Redis history, keyed by its JobID when present.
func mirrorToRedis(bus *events.Bus, rs *events.RedisStore) {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for ev := range ch {
		if err := rs.Append(context.Background(), jobIDOf(ev), ev); err != nil {
			log.Warn().Err(err).Msg("failed to append event to redis history")
		}
	}
}

func jobIDOf(ev events.Event) string {
	if d, ok := ev.Payload.(*responseset.Detail); ok {
		return d.JobID
	}
	return ""
}

func printBanner() {
	fmt.Println(`
  ____  _                    _____ _
 |  _ \(_) ___ ___  _ __ ___|  ___| | _____      __
 | | | | |/ __/ _ \| '_ ' _ \ |_  | |/ _ \ \ /\ / /
 | |_| | | (_| (_) | | | | | |  _| | | (_) \ V  V /
 |____/|_|\___\___/|_| |_| |_|_|   |_|\___/ \_/\_/

  DICOM job scheduler
  `)
}
