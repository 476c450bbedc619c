package worker

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/job"
)

// QueryWorker drives a Query{level} job's C-FIND exchange (spec.md §4.1).
type QueryWorker struct {
	base
}

func newQueryWorker(deps job.WorkerDeps) job.Worker {
	b := newBase(deps)
	return &QueryWorker{base: b}
}

func init() {
	job.RegisterWorkerFactory(job.TypeQueryPatients, newQueryWorker)
	job.RegisterWorkerFactory(job.TypeQueryStudies, newQueryWorker)
	job.RegisterWorkerFactory(job.TypeQuerySeries, newQueryWorker)
	job.RegisterWorkerFactory(job.TypeQueryInstances, newQueryWorker)
}

func (w *QueryWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	ctx = w.withCancel(ctx)

	payload, ok := j.Payload().(*job.QueryPayload)
	if !ok || payload.Server == nil {
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
		return
	}

	op := newOperation(w.deps, j, sch, payload.Server)
	op.SetFilters(payload.Filters)

	runAttempt(ctx, j, sch, op, func(ctx context.Context) (bool, error) {
		switch j.Level() {
		case job.LevelPatients:
			return op.QueryPatients(ctx)
		case job.LevelStudies:
			return op.QueryStudies(ctx, j.PatientID())
		case job.LevelSeries:
			return op.QuerySeries(ctx, j.PatientID(), j.StudyUID())
		case job.LevelInstances:
			return op.QueryInstances(ctx, j.PatientID(), j.StudyUID(), j.SeriesUID())
		default:
			return false, job.ErrInvalidInput
		}
	})

	flushToInserter(j, sch, op.ResponseSets())
}
