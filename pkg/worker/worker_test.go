package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
	"github.com/nuulab/dicomflow/pkg/store"
)

// fakeScheduler records every callback a Worker makes, standing in for
// pkg/scheduler in these unit tests (which would otherwise need the full
// admission loop running).
type fakeScheduler struct {
	mu sync.Mutex

	admitted      []*job.Job
	inserted      [][]*responseset.ResponseSet
	started       []string
	canceled      []string
	attemptFailed []string
	failed        []string
	finished      []string
	progress      []string
}

func (f *fakeScheduler) AdmitClone(clone *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admitted = append(f.admitted, clone)
}

func (f *fakeScheduler) InsertResponseSets(sets []*responseset.ResponseSet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, sets)
	return job.NewID(), nil
}

func (f *fakeScheduler) EmitStarted(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, j.ID())
}
func (f *fakeScheduler) EmitCanceled(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, j.ID())
}
func (f *fakeScheduler) EmitAttemptFailed(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attemptFailed = append(f.attemptFailed, j.ID())
}
func (f *fakeScheduler) EmitFailed(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, j.ID())
}
func (f *fakeScheduler) EmitFinished(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, j.ID())
}
func (f *fakeScheduler) EmitProgress(j *job.Job, _ *responseset.Detail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, j.ID())
}

func (f *fakeScheduler) snapshotFinished() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finished...)
}

func (f *fakeScheduler) snapshotFailed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failed...)
}

func (f *fakeScheduler) snapshotAttemptFailed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attemptFailed...)
}

func (f *fakeScheduler) snapshotAdmitted() []*job.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*job.Job(nil), f.admitted...)
}

func testServer(name string) *server.Server {
	return &server.Server{
		ConnectionName: name,
		CallingAE:      "SCU",
		CalledAE:       "SCP",
		Host:           "127.0.0.1",
		Port:           104,
	}
}

func depsWithMock(mock *operation.Mock) job.WorkerDeps {
	return job.WorkerDeps{NewOperation: func() operation.Operation { return mock }}
}

func TestQueryWorkerRunSuccess(t *testing.T) {
	mock := operation.NewMock()
	mock.Produce = func(verb string) []*responseset.ResponseSet {
		return []*responseset.ResponseSet{{JobType: verb, PatientID: "pat1"}}
	}

	j := job.NewQueryJob(job.LevelPatients, testServer("pacs1"), nil)
	w := newQueryWorker(depsWithMock(mock))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFinished {
		t.Fatalf("expected StatusFinished, got %v", j.Status())
	}
	if len(sch.snapshotFinished()) != 1 {
		t.Fatalf("expected exactly one finished callback, got %d", len(sch.snapshotFinished()))
	}
	if len(sch.inserted) != 1 {
		t.Fatalf("expected the produced ResponseSet to be flushed to an Inserter, got %d flushes", len(sch.inserted))
	}
}

func TestQueryWorkerRetriesOnTransientFailure(t *testing.T) {
	mock := operation.NewMock()
	mock.FailuresBeforeSuccess = 1

	j := job.NewQueryJob(job.LevelStudies, testServer("pacs1"), nil, job.WithRetryDelayMs(1))
	w := newQueryWorker(depsWithMock(mock))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusAttemptFailed {
		t.Fatalf("expected StatusAttemptFailed after a transient failure, got %v", j.Status())
	}
	if len(sch.snapshotAttemptFailed()) != 1 {
		t.Fatalf("expected one attempt_failed callback, got %d", len(sch.snapshotAttemptFailed()))
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(sch.snapshotAdmitted()) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	admitted := sch.snapshotAdmitted()
	if len(admitted) != 1 {
		t.Fatalf("expected exactly one retry clone admitted, got %d", len(admitted))
	}
	if admitted[0].RetryCounter() != 1 {
		t.Fatalf("expected retry clone's retry_counter to be 1, got %d", admitted[0].RetryCounter())
	}
	if admitted[0].ID() == j.ID() {
		t.Fatal("expected the retry clone to carry a fresh JobID")
	}
}

func TestQueryWorkerExhaustsRetries(t *testing.T) {
	mock := operation.NewMock()
	mock.AlwaysFail = job.ErrTransient

	j := job.NewQueryJob(job.LevelStudies, testServer("pacs1"), nil,
		job.WithMaximumRetries(0), job.WithRetryDelayMs(1))
	w := newQueryWorker(depsWithMock(mock))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFailed {
		t.Fatalf("expected StatusFailed once retries are exhausted, got %v", j.Status())
	}
	if len(sch.snapshotAdmitted()) != 0 {
		t.Fatal("expected no retry clone once maximum_retries is 0")
	}
}

func TestQueryWorkerCancellation(t *testing.T) {
	mock := operation.NewMock()

	j := job.NewQueryJob(job.LevelPatients, testServer("pacs1"), nil)
	w := newQueryWorker(depsWithMock(mock))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.Run(ctx)

	if j.Status() != job.StatusUserStopped {
		t.Fatalf("expected StatusUserStopped on a pre-cancelled context, got %v", j.Status())
	}
	if len(sch.canceled) != 1 {
		t.Fatalf("expected one user_job_canceled callback, got %d", len(sch.canceled))
	}
}

func TestEchoWorkerSuccess(t *testing.T) {
	mock := operation.NewMock()
	j := job.NewEchoJob(testServer("pacs1"))
	w := newEchoWorker(depsWithMock(mock))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFinished {
		t.Fatalf("expected StatusFinished, got %v", j.Status())
	}
}

func TestRetrieveWorkerProxyReChains(t *testing.T) {
	proxyTarget := testServer("upstream")
	proxyTarget.QueryRetrieveEnabled = true
	front := testServer("proxy-front")
	front.Proxy = proxyTarget

	j := job.NewRetrieveJob(job.LevelStudies, front, job.WithUIDs("pat1", "study1", "", ""))
	w := newRetrieveWorker(depsWithMock(operation.NewMock()))
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFinished {
		t.Fatalf("expected the proxy job itself to finish immediately, got %v", j.Status())
	}
	admitted := sch.snapshotAdmitted()
	if len(admitted) != 1 {
		t.Fatalf("expected one re-chained Retrieve job admitted, got %d", len(admitted))
	}
	rp, ok := admitted[0].Payload().(*job.RetrievePayload)
	if !ok {
		t.Fatalf("expected re-chained job payload to be *RetrievePayload, got %T", admitted[0].Payload())
	}
	if rp.Server.ConnectionName != "upstream" {
		t.Fatalf("expected re-chained job to target the proxy's upstream server, got %q", rp.Server.ConnectionName)
	}
	if admitted[0].StudyUID() != "study1" {
		t.Fatal("expected re-chained job to preserve the study UID")
	}
}

func TestInserterWorkerInsertsIntoStore(t *testing.T) {
	mem := store.NewMemStore("db.sqlite")
	j := job.NewInserterJob(&job.InserterPayload{DatabaseFilename: "db.sqlite"})
	j.AppendResponseSet(&responseset.ResponseSet{JobID: j.ID(), StudyUID: "study1"})

	deps := job.WorkerDeps{Store: mem}
	w := newInserterWorker(deps)
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFinished {
		t.Fatalf("expected StatusFinished, got %v", j.Status())
	}
	if len(mem.Inserted()) != 1 {
		t.Fatalf("expected one ResponseSet persisted, got %d", len(mem.Inserted()))
	}
}

func TestInserterWorkerStoreFailure(t *testing.T) {
	mem := store.NewMemStore("db.sqlite")
	mem.FailNext = job.ErrStoreFailure

	j := job.NewInserterJob(&job.InserterPayload{DatabaseFilename: "db.sqlite"})
	j.AppendResponseSet(&responseset.ResponseSet{JobID: j.ID()})

	w := newInserterWorker(job.WorkerDeps{Store: mem})
	sch := &fakeScheduler{}
	w.SetJob(j, sch)

	w.Run(context.Background())

	if j.Status() != job.StatusFailed {
		t.Fatalf("expected StatusFailed on store error, got %v", j.Status())
	}
}
