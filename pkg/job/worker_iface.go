package job

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/store"
)

// Worker is the minimal contract the scheduler drives for any Job variant
// (spec.md §9: "Worker is another trait {set_job, run, cancel}"). Concrete
// implementations live in pkg/worker; this package only depends on the
// interface so that Job.CreateWorker never has to import pkg/worker,
// which in turn imports pkg/job.
type Worker interface {
	// SetJob associates the Worker with its Job and the Scheduler facade
	// it reports back through.
	SetJob(j *Job, sched Scheduler)
	// Run drives the Operation to completion for this Job. Called by the
	// scheduler's worker pool.
	Run(ctx context.Context)
	// Cancel requests cooperative cancellation; thread-safe.
	Cancel()
}

// Scheduler is the facade a Worker needs back into the scheduler: admit a
// retry/proxy clone, enqueue an Inserter for collected results, and emit
// the lifecycle signals spec.md §4.4 defines. Implemented by
// pkg/scheduler.Scheduler; declared here (rather than imported) to keep
// pkg/job free of a dependency on pkg/scheduler.
type Scheduler interface {
	AdmitClone(clone *Job)
	InsertResponseSets(sets []*responseset.ResponseSet) (string, error)
	EmitStarted(j *Job)
	EmitCanceled(j *Job)
	// EmitAttemptFailed reports a single failed attempt that will be
	// retried (spec.md §6 "attempt_failed").
	EmitAttemptFailed(j *Job)
	// EmitFailed reports the Job's terminal Failed status (spec.md §6
	// "job_failed").
	EmitFailed(j *Job)
	EmitFinished(j *Job)
	EmitProgress(j *Job, detail *responseset.Detail)
}

// WorkerDeps bundles the external collaborators a Worker needs to seed its
// Operation and, for the Inserter, its Store. Supplied by the Scheduler at
// admission time (spec.md §4.4 "instantiate worker = job.create_worker()").
type WorkerDeps struct {
	NewOperation func() operation.Operation
	Store        store.Store
}

// WorkerFactory builds a Worker for one Job.Type, given its dependencies.
type WorkerFactory func(WorkerDeps) Worker

var workerFactories = map[Type]WorkerFactory{}

// RegisterWorkerFactory registers the Worker constructor for a Job.Type.
// Called from pkg/worker's package-level init() functions, one per
// variant, so that importing pkg/worker (even blank-imported) wires every
// Job.Type to its concrete Worker.
func RegisterWorkerFactory(t Type, f WorkerFactory) {
	workerFactories[t] = f
}
