// Package main demonstrates basic end-to-end usage of the dicomflow
// scheduler: register a server, admit a few jobs, watch the event bus.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("=== Registering a Server ===")
	registry := server.NewRegistry()
	registry.Add(&server.Server{
		ConnectionName:       "pacs1",
		CallingAE:            "DICOMFLOW",
		CalledAE:             "PACS",
		Host:                 "127.0.0.1",
		Port:                 104,
		RetrieveProtocol:     server.CGET,
		QueryRetrieveEnabled: true,
	})
	fmt.Printf("Registered %d server(s)\n\n", registry.Count())

	fmt.Println("=== Watching Events ===")
	bus := events.NewBus()
	stream, unsubscribe := bus.Subscribe(32)
	defer unsubscribe()
	go func() {
		for ev := range stream {
			fmt.Printf("  [event] %s\n", ev.Kind)
		}
	}()

	mock := operation.NewMock()
	mock.Produce = func(verb string) []*responseset.ResponseSet {
		return []*responseset.ResponseSet{{JobType: verb, PatientID: "PAT001", StudyUID: "1.2.3"}}
	}
	mem := store.NewMemStore("example.db")

	deps := job.WorkerDeps{
		NewOperation: func() operation.Operation { return mock },
		Store:        mem,
	}
	sch := scheduler.New(4, registry, deps, bus, progress.NewTracker(), scheduler.NewDLQ(0))

	fmt.Println("\n=== Admitting a QueryPatients Job ===")
	j, err := sch.QueryPatients("pacs1", map[string]any{"PatientName": "*"})
	if err != nil {
		log.Fatal(err)
	}
	if err := sch.WaitForFinish(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("QueryPatients finished: status=%s datasets=%d\n\n", j.Status(), j.ToDetail().NumberOfDatasets)

	fmt.Println("=== Admitting a RetrieveStudy Job ===")
	rj, err := sch.RetrieveStudy("pacs1", "PAT001", "1.2.3")
	if err != nil {
		log.Fatal(err)
	}
	if err := sch.WaitForFinish(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("RetrieveStudy finished: status=%s\n\n", rj.Status())

	time.Sleep(50 * time.Millisecond) // let the event stream drain before exit
	fmt.Println("dicomflow example complete")
}
