package job

import (
	"testing"

	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
)

func testServer(name string) *server.Server {
	return &server.Server{
		ConnectionName:       name,
		CallingAE:            "SCU",
		CalledAE:             "SCP",
		Host:                 "127.0.0.1",
		Port:                 104,
		QueryRetrieveEnabled: true,
	}
}

func TestNewQueryJobDefaults(t *testing.T) {
	j := NewQueryJob(LevelStudies, testServer("pacs1"), map[string]any{"PatientID": "123"})

	if j.ID() == "" {
		t.Fatal("expected a non-empty JobID")
	}
	if j.Status() != StatusInitialized {
		t.Fatalf("expected StatusInitialized, got %v", j.Status())
	}
	if j.Priority() != DefaultPriority {
		t.Fatalf("expected DefaultPriority, got %v", j.Priority())
	}
	if j.MaximumRetries() != DefaultMaximumRetries {
		t.Fatalf("expected %d maximum retries, got %d", DefaultMaximumRetries, j.MaximumRetries())
	}
	if j.MaximumConcurrentPerType() != DefaultMaximumConcurrentPerType {
		t.Fatalf("expected default concurrency cap, got %d", j.MaximumConcurrentPerType())
	}
	if j.Type() != TypeQueryStudies {
		t.Fatalf("expected TypeQueryStudies, got %v", j.Type())
	}
}

func TestNewInserterJobDefaultConcurrency(t *testing.T) {
	j := NewInserterJob(&InserterPayload{DatabaseFilename: "db.sqlite"})
	if j.MaximumConcurrentPerType() != InserterMaximumConcurrentPerType {
		t.Fatalf("expected inserter concurrency cap %d, got %d", InserterMaximumConcurrentPerType, j.MaximumConcurrentPerType())
	}
	if j.Type() != TypeInserter {
		t.Fatalf("expected TypeInserter, got %v", j.Type())
	}
}

func TestJobCloneCopiesConfigNotRuntimeState(t *testing.T) {
	original := NewRetrieveJob(LevelSeries, testServer("pacs1"),
		WithUIDs("pat1", "study1", "series1", ""),
		WithPriority(PriorityHigh),
		WithMaximumRetries(5),
	)
	original.SetStatus(StatusRunning)
	original.AppendResponseSet(&responseset.ResponseSet{JobID: original.ID(), StudyUID: "study1"})
	original.WithRetryCounter(2)

	clone := original.Clone()

	if clone.ID() == original.ID() {
		t.Fatal("expected clone to receive a fresh JobID")
	}
	if clone.Status() != StatusInitialized {
		t.Fatalf("expected clone to start Initialized, got %v", clone.Status())
	}
	if len(clone.ResponseSets()) != 0 {
		t.Fatalf("expected clone to start with no response sets, got %d", len(clone.ResponseSets()))
	}
	if clone.RetryCounter() != 2 {
		t.Fatalf("expected clone to preserve retry_counter verbatim, got %d", clone.RetryCounter())
	}
	if clone.Priority() != PriorityHigh || clone.MaximumRetries() != 5 {
		t.Fatal("expected clone to preserve configuration fields")
	}
	if clone.PatientID() != "pat1" || clone.StudyUID() != "study1" || clone.SeriesUID() != "series1" {
		t.Fatal("expected clone to preserve hierarchy UIDs")
	}

	rp, ok := clone.Payload().(*RetrievePayload)
	if !ok {
		t.Fatalf("expected clone payload to be *RetrievePayload, got %T", clone.Payload())
	}
	origRP := original.Payload().(*RetrievePayload)
	if rp.Server == origRP.Server {
		t.Fatal("expected clone payload to deep-copy the Server, not alias it")
	}
	if rp.Server.ConnectionName != origRP.Server.ConnectionName {
		t.Fatal("expected cloned Server to preserve field values")
	}
}

func TestWithRetryCounterIncrementsIndependently(t *testing.T) {
	j := NewEchoJob(testServer("pacs1"))
	clone := j.Clone().WithRetryCounter(j.RetryCounter() + 1)
	if clone.RetryCounter() != 1 {
		t.Fatalf("expected retry_counter 1, got %d", clone.RetryCounter())
	}
	if j.RetryCounter() != 0 {
		t.Fatal("expected original job's retry_counter to remain unaffected")
	}
}

func TestSetStatusNoOpAfterTerminal(t *testing.T) {
	j := NewEchoJob(testServer("pacs1"))
	j.SetStatus(StatusFinished)
	j.SetStatus(StatusRunning)
	if j.Status() != StatusFinished {
		t.Fatalf("expected status to remain terminal Finished, got %v", j.Status())
	}
}

func TestCreateWorkerWithoutRegisteredFactoryReturnsNil(t *testing.T) {
	j := NewThumbnailJob(&ThumbnailPayload{SopUID: "1.2.3", FilePath: "/tmp/x.dcm"})
	w := j.CreateWorker(WorkerDeps{})
	if w != nil {
		t.Fatal("expected nil Worker when no factory is registered for TypeThumbnailGenerator")
	}
}
