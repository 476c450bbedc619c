package worker

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/job"
)

// InserterWorker drains the ResponseSets handed to it at creation into the
// configured Store, under a concurrency cap of one (spec.md §4.5). Once a
// batch insert has started it always runs to completion — Cancel only
// changes the terminal status reported afterward, so a partially written
// batch is never left half-applied (spec.md §4.5 "cancel-then-finish").
type InserterWorker struct {
	base
}

func newInserterWorker(deps job.WorkerDeps) job.Worker {
	return &InserterWorker{base: newBase(deps)}
}

func init() {
	job.RegisterWorkerFactory(job.TypeInserter, newInserterWorker)
}

func (w *InserterWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	// Deliberately not w.withCancel(ctx): Cancel() must not abort an
	// in-flight InsertBatch call, only influence the status reported once
	// it returns.
	_ = ctx

	sch.EmitStarted(j)
	j.SetStatus(job.StatusRunning)

	sets := j.ResponseSets()
	var err error
	if w.deps.Store != nil {
		err = w.deps.Store.InsertBatch(context.Background(), sets)
	}

	switch {
	case err != nil:
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
	case w.wasCancelled():
		j.SetStatus(job.StatusUserStopped)
		sch.EmitCanceled(j)
	default:
		j.SetStatus(job.StatusFinished)
		sch.EmitFinished(j)
	}
}
