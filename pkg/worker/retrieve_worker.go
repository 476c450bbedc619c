package worker

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/server"
)

// RetrieveWorker drives a Retrieve{level} job, dispatching to C-GET or
// C-MOVE per the target Server's RetrieveProtocol, and re-chaining a
// fresh Retrieve job against the configured Server's Proxy when that
// proxy has query/retrieve enabled (spec.md §4.6).
type RetrieveWorker struct {
	base
}

func newRetrieveWorker(deps job.WorkerDeps) job.Worker {
	return &RetrieveWorker{base: newBase(deps)}
}

func init() {
	job.RegisterWorkerFactory(job.TypeRetrieveStudy, newRetrieveWorker)
	job.RegisterWorkerFactory(job.TypeRetrieveSeries, newRetrieveWorker)
	job.RegisterWorkerFactory(job.TypeRetrieveSopInst, newRetrieveWorker)
}

func (w *RetrieveWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	ctx = w.withCancel(ctx)

	payload, ok := j.Payload().(*job.RetrievePayload)
	if !ok || payload.Server == nil {
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
		return
	}
	srv := payload.Server
	op := newOperation(w.deps, j, sch, srv)

	runAttempt(ctx, j, sch, op, func(ctx context.Context) (bool, error) {
		return dispatchRetrieve(ctx, op, srv, j)
	})

	// Proxy re-dispatch: once this retrieve against srv has finished
	// successfully, and srv itself proxies to an upstream Server that is
	// allowed to serve query/retrieve work, admit a fresh Retrieve job
	// against that upstream target with a reset retry_counter (spec.md
	// §4.6 "Proxy re-dispatch"). Gated on HasProxyQueryRetrieveEnabled
	// rather than a bare nil-check, and only after the Operation itself
	// has run — a proxy server is still contacted directly first. No
	// Inserter is enqueued for this pass; the re-chained job flushes its
	// own ResponseSets.
	if j.Status() == job.StatusFinished && srv.HasProxyQueryRetrieveEnabled() {
		reChained := job.NewRetrieveJob(j.Level(), srv.Proxy.Clone(),
			job.WithUIDs(j.PatientID(), j.StudyUID(), j.SeriesUID(), j.SopUID()),
			job.WithPriority(j.Priority()),
			job.WithMaximumRetries(j.MaximumRetries()),
			job.WithRetryDelayMs(j.RetryDelayMs()),
		)
		sch.AdmitClone(reChained)
		return
	}

	flushToInserter(j, sch, op.ResponseSets())
}

func dispatchRetrieve(ctx context.Context, op interface {
	GetStudy(context.Context, string, string) (bool, error)
	GetSeries(context.Context, string, string, string) (bool, error)
	GetSopInstance(context.Context, string, string, string, string) (bool, error)
	MoveStudy(context.Context, string, string) (bool, error)
	MoveSeries(context.Context, string, string, string) (bool, error)
	MoveSopInstance(context.Context, string, string, string, string) (bool, error)
}, srv *server.Server, j *job.Job) (bool, error) {
	cget := srv.RetrieveProtocol == server.CGET
	switch j.Level() {
	case job.LevelStudies:
		if cget {
			return op.GetStudy(ctx, j.PatientID(), j.StudyUID())
		}
		return op.MoveStudy(ctx, j.PatientID(), j.StudyUID())
	case job.LevelSeries:
		if cget {
			return op.GetSeries(ctx, j.PatientID(), j.StudyUID(), j.SeriesUID())
		}
		return op.MoveSeries(ctx, j.PatientID(), j.StudyUID(), j.SeriesUID())
	case job.LevelInstances:
		if cget {
			return op.GetSopInstance(ctx, j.PatientID(), j.StudyUID(), j.SeriesUID(), j.SopUID())
		}
		return op.MoveSopInstance(ctx, j.PatientID(), j.StudyUID(), j.SeriesUID(), j.SopUID())
	default:
		return false, job.ErrInvalidInput
	}
}
