package worker

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/job"
)

// EchoWorker drives a C-ECHO connectivity test against a single Server
// (spec.md §4.8). Echo jobs never produce ResponseSets and never hand
// anything to an Inserter; a failed echo is retried like any attempt.
type EchoWorker struct {
	base
}

func newEchoWorker(deps job.WorkerDeps) job.Worker {
	return &EchoWorker{base: newBase(deps)}
}

func init() {
	job.RegisterWorkerFactory(job.TypeEcho, newEchoWorker)
}

func (w *EchoWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	ctx = w.withCancel(ctx)

	payload, ok := j.Payload().(*job.EchoPayload)
	if !ok || payload.Server == nil {
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
		return
	}

	op := newOperation(w.deps, j, sch, payload.Server)
	runAttempt(ctx, j, sch, op, op.Echo)
}
