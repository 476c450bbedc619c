// Package scheduler implements the admission queue, priority-ordered
// dispatch, and public entry points for the DICOM job system (spec.md
// §4). Grounded on the teacher's queue.Worker processing loop
// (pkg/queue/queue.go) and BatchProcessor scan-and-dispatch idiom
// (pkg/queue/batch.go), generalized from a single generic job type with
// one handler map to six concrete Job variants admitted under per-class
// concurrency caps (spec.md §4.4) plus an overall thread-count ceiling
// enforced via a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/nuulab/dicomflow/pkg/events"
	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/progress"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
	_ "github.com/nuulab/dicomflow/pkg/worker" // registers every job.Type's WorkerFactory
)

// Scheduler owns the admission queue: every Job ever admitted, the
// priority-ordered scan that dispatches eligible ones, and the
// lifecycle-signal fan-out a Worker reports back through (spec.md §4).
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs          map[job.ID]*job.Job
	pending       []*job.Job
	runningByType map[job.Type]int
	runningWorker map[job.ID]job.Worker
	doneCh        map[job.ID]chan struct{}
	closed        bool

	registry *server.Registry
	deps     job.WorkerDeps
	bus      *events.Bus
	tracker  *progress.Tracker
	dlq      *DLQ
	pool     *pool.Pool

	log zerolog.Logger
}

// New creates a Scheduler against maxThreads concurrent Jobs overall
// (spec.md §4.4 "maximum_thread_count"). deps supplies the Operation
// factory and Store every Worker is built with; registry is the Server
// set Query/Retrieve/Echo entry points resolve connection names against.
func New(maxThreads int, registry *server.Registry, deps job.WorkerDeps, bus *events.Bus, tracker *progress.Tracker, dlq *DLQ) *Scheduler {
	if maxThreads <= 0 {
		maxThreads = 8
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	if dlq == nil {
		dlq = NewDLQ(0)
	}

	s := &Scheduler{
		jobs:          make(map[job.ID]*job.Job),
		runningByType: make(map[job.Type]int),
		runningWorker: make(map[job.ID]job.Worker),
		doneCh:        make(map[job.ID]chan struct{}),
		registry:      registry,
		deps:          deps,
		bus:           bus,
		tracker:       tracker,
		dlq:           dlq,
		pool:          pool.New().WithMaxGoroutines(maxThreads),
		log:           log.With().Str("component", "scheduler").Logger(),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.admitLoop()
	return s
}

// Bus exposes the scheduler's event fan-out for subscribers (the HTTP/
// WebSocket layer, tests).
func (s *Scheduler) Bus() *events.Bus { return s.bus }

// Tracker exposes the scheduler's progress projection.
func (s *Scheduler) Tracker() *progress.Tracker { return s.tracker }

// DLQ exposes the scheduler's dead letter queue.
func (s *Scheduler) DLQ() *DLQ { return s.dlq }

// Registry exposes the scheduler's Server registry.
func (s *Scheduler) Registry() *server.Registry { return s.registry }

// Job returns the Job admitted under id, or nil if unknown.
func (s *Scheduler) Job(id job.ID) *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// admit registers j and appends it to the pending queue, waking the
// admission loop.
func (s *Scheduler) admit(j *job.Job) {
	s.mu.Lock()
	s.jobs[j.ID()] = j
	s.pending = append(s.pending, j)
	s.doneCh[j.ID()] = make(chan struct{})
	j.SetStatus(job.StatusQueued)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// --- job.Scheduler facade, called back into by Workers ---

// AdmitClone implements job.Scheduler.
func (s *Scheduler) AdmitClone(clone *job.Job) { s.admit(clone) }

// InsertResponseSets implements job.Scheduler: it creates a fresh
// Inserter job carrying sets and admits it at high priority (spec.md
// §4.3, §4.5).
func (s *Scheduler) InsertResponseSets(sets []*responseset.ResponseSet) (string, error) {
	if s.deps.Store == nil {
		return "", fmt.Errorf("scheduler: no Store configured, cannot insert %d response sets", len(sets))
	}
	payload := &job.InserterPayload{
		DatabaseFilename:         s.deps.Store.DatabaseFilename(),
		TagsToPrecache:           s.deps.Store.TagsToPrecache(),
		TagsToExcludeFromStorage: s.deps.Store.TagsToExcludeFromStorage(),
	}
	ij := job.NewInserterJob(payload, job.WithPriority(job.ResponseSetInsertPriority))
	for _, rs := range responseset.CloneAll(sets) {
		ij.AppendResponseSet(rs)
	}
	s.admit(ij)
	return ij.ID(), nil
}

// EmitStarted implements job.Scheduler.
func (s *Scheduler) EmitStarted(j *job.Job) {
	s.tracker.Start(j.ID())
	s.bus.Publish(events.KindJobStarted, j.ToDetail())
}

// EmitCanceled implements job.Scheduler.
func (s *Scheduler) EmitCanceled(j *job.Job) {
	s.bus.Publish(events.KindUserJobCanceled, j.ToDetail())
	s.tracker.Forget(j.ID())
}

// EmitAttemptFailed implements job.Scheduler.
func (s *Scheduler) EmitAttemptFailed(j *job.Job) {
	s.bus.Publish(events.KindAttemptFailed, j.ToDetail())
}

// EmitFailed implements job.Scheduler: this is always j's terminal
// Failed status, so it is also where the Job lands in the DLQ
// (spec.md §7 "ExhaustedRetries").
func (s *Scheduler) EmitFailed(j *job.Job) {
	s.bus.Publish(events.KindJobFailed, j.ToDetail())
	s.tracker.Fail(j.ID(), "exhausted retries")
	s.dlq.Add(context.Background(), j, job.ErrExhaustedRetries)
}

// EmitFinished implements job.Scheduler.
func (s *Scheduler) EmitFinished(j *job.Job) {
	s.tracker.Complete(j.ID())
	s.bus.Publish(events.KindJobFinished, j.ToDetail())
}

// EmitProgress implements job.Scheduler.
func (s *Scheduler) EmitProgress(j *job.Job, detail *responseset.Detail) {
	s.tracker.Update(j.ID(), detail.NumberOfDatasets, "in progress")
	s.bus.Publish(events.KindProgressJobDetail, detail)
}
