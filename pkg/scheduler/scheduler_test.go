package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
	"github.com/nuulab/dicomflow/pkg/store"
)

func newTestScheduler(t *testing.T, mock *operation.Mock, mem *store.MemStore) (*Scheduler, *server.Registry) {
	t.Helper()
	reg := server.NewRegistry()
	reg.Add(&server.Server{ConnectionName: "pacs1", CallingAE: "SCU", CalledAE: "SCP", Host: "127.0.0.1", Port: 104})

	deps := job.WorkerDeps{
		NewOperation: func() operation.Operation { return mock },
		Store:        mem,
	}
	sch := New(4, reg, deps, nil, nil, nil)
	return sch, reg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerQueryStudiesSuccessFlushesInserter(t *testing.T) {
	mock := operation.NewMock()
	mock.Produce = func(verb string) []*responseset.ResponseSet {
		return []*responseset.ResponseSet{{JobType: verb, StudyUID: "study1"}}
	}
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j, err := sch.QueryStudies("pacs1", "pat1", nil)
	if err != nil {
		t.Fatalf("QueryStudies: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinish(ctx); err != nil {
		t.Fatalf("WaitForFinish: %v", err)
	}
	if j.Status() != job.StatusFinished {
		t.Fatalf("expected StatusFinished, got %v", j.Status())
	}

	waitFor(t, 2*time.Second, func() bool { return len(mem.Inserted()) == 1 })
}

func TestSchedulerUnknownServerReturnsError(t *testing.T) {
	mock := operation.NewMock()
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	if _, err := sch.QueryPatients("no-such-server", nil); err == nil {
		t.Fatal("expected ErrServerNotFound")
	}
}

func TestSchedulerRetrieveExhaustsRetriesIntoDLQ(t *testing.T) {
	mock := operation.NewMock()
	mock.AlwaysFail = job.ErrTransient
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j, err := sch.RetrieveStudy("pacs1", "pat1", "study1",
		job.WithMaximumRetries(0), job.WithRetryDelayMs(1))
	if err != nil {
		t.Fatalf("RetrieveStudy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinish(ctx); err != nil {
		t.Fatalf("WaitForFinish: %v", err)
	}
	if j.Status() != job.StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", j.Status())
	}

	waitFor(t, 2*time.Second, func() bool { return sch.DLQ().Len() == 1 })

	if _, ok := sch.jobs[j.ID()]; ok {
		t.Fatal("expected terminal job to be removed from the job table")
	}
}

func TestSchedulerRetrieveRetriesThenSucceeds(t *testing.T) {
	mock := operation.NewMock()
	mock.FailuresBeforeSuccess = 1
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j, err := sch.RetrieveSeries("pacs1", "pat1", "study1", "series1", job.WithRetryDelayMs(1))
	if err != nil {
		t.Fatalf("RetrieveSeries: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinishByUIDs(ctx, nil, []string{"study1"}, nil, nil); err != nil {
		t.Fatalf("WaitForFinishByUIDs: %v", err)
	}

	_ = j
}

func TestSchedulerEchoSuccess(t *testing.T) {
	mock := operation.NewMock()
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j, err := sch.Echo("pacs1")
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinish(ctx); err != nil {
		t.Fatalf("WaitForFinish: %v", err)
	}
	if j.Status() != job.StatusFinished {
		t.Fatalf("expected StatusFinished, got %v", j.Status())
	}
}

// TestSchedulerStopAllLeavesPersistentJobsWhenExcluded asserts spec.md §8's
// "stop_all(false) leaves every persistent job in its prior state" — a
// bare StopAll(false) must not touch the storage listener.
func TestSchedulerStopAllLeavesPersistentJobsWhenExcluded(t *testing.T) {
	mock := operation.NewMock()
	mock.Produce = func(verb string) []*responseset.ResponseSet { return nil }
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j := sch.StartListener(&job.ListenerPayload{Port: 11112, AETitle: "LISTENER", BatchFlushIntervalMs: 50})
	waitFor(t, time.Second, func() bool { return j.Status() == job.StatusRunning })

	sch.StopAll(false)

	time.Sleep(50 * time.Millisecond)
	if j.Status() != job.StatusRunning {
		t.Fatalf("expected listener job to stay Running, got %v", j.Status())
	}
}

// TestSchedulerStopAllIncludesPersistentJobsWhenRequested asserts that
// StopAll(true) does cancel a persistent listener job.
func TestSchedulerStopAllIncludesPersistentJobsWhenRequested(t *testing.T) {
	mock := operation.NewMock()
	mock.Produce = func(verb string) []*responseset.ResponseSet { return nil }
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	j := sch.StartListener(&job.ListenerPayload{Port: 11112, AETitle: "LISTENER", BatchFlushIntervalMs: 50})
	waitFor(t, time.Second, func() bool { return j.Status() == job.StatusRunning })

	sch.StopAll(true)

	waitFor(t, 2*time.Second, func() bool { return j.Status() == job.StatusUserStopped })
}

func TestSchedulerPerClassConcurrencyCap(t *testing.T) {
	mock := operation.NewMock()
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	var jobs []*job.Job
	for i := 0; i < 5; i++ {
		j, err := sch.QueryPatients("pacs1", nil, job.WithMaximumConcurrentPerType(2))
		if err != nil {
			t.Fatalf("QueryPatients: %v", err)
		}
		jobs = append(jobs, j)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinish(ctx); err != nil {
		t.Fatalf("WaitForFinish: %v", err)
	}
	for _, j := range jobs {
		if j.Status() != job.StatusFinished {
			t.Fatalf("expected StatusFinished, got %v", j.Status())
		}
	}
}

func TestSchedulerRaisePriorityForSeries(t *testing.T) {
	mock := operation.NewMock()
	mock.AlwaysFail = job.ErrTransient
	mem := store.NewMemStore("db.sqlite")
	sch, _ := newTestScheduler(t, mock, mem)

	raised, err := sch.RetrieveSeries("pacs1", "pat1", "study1", "series1",
		job.WithPriority(job.PriorityLowest), job.WithMaximumRetries(0))
	if err != nil {
		t.Fatalf("RetrieveSeries: %v", err)
	}
	other, err := sch.RetrieveSeries("pacs1", "pat1", "study2", "series2",
		job.WithPriority(job.PriorityNormal), job.WithMaximumRetries(0))
	if err != nil {
		t.Fatalf("RetrieveSeries: %v", err)
	}

	sch.RaisePriorityForSeries([]string{"series1"}, job.PriorityHighest)

	if raised.Priority() != job.PriorityHighest {
		t.Fatalf("expected matching job raised to PriorityHighest, got %v", raised.Priority())
	}
	if other.Priority() != job.PriorityLow {
		t.Fatalf("expected non-matching job demoted to PriorityLow, got %v", other.Priority())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sch.WaitForFinish(ctx); err != nil {
		t.Fatalf("WaitForFinish: %v", err)
	}
}
