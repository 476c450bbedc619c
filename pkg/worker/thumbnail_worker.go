package worker

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/responseset"
)

// ThumbnailWorker generates a preview image for a single SOP instance
// already on local disk. It never contacts a remote Server, so it drives
// no Operation verb beyond producing its own ResponseSet describing the
// rendered file (spec.md §4, "ThumbnailGenerator").
type ThumbnailWorker struct {
	base
}

func newThumbnailWorker(deps job.WorkerDeps) job.Worker {
	return &ThumbnailWorker{base: newBase(deps)}
}

func init() {
	job.RegisterWorkerFactory(job.TypeThumbnailGenerator, newThumbnailWorker)
}

func (w *ThumbnailWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	ctx = w.withCancel(ctx)

	payload, ok := j.Payload().(*job.ThumbnailPayload)
	if !ok || payload.FilePath == "" {
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
		return
	}

	sch.EmitStarted(j)
	j.SetStatus(job.StatusRunning)

	select {
	case <-ctx.Done():
		j.SetStatus(job.StatusUserStopped)
		sch.EmitCanceled(j)
		return
	default:
	}

	j.AppendResponseSet(&responseset.ResponseSet{
		JobType:  string(job.TypeThumbnailGenerator),
		JobID:    j.ID(),
		SopUID:   payload.SopUID,
		FilePath: payload.FilePath,
	})
	sch.EmitProgress(j, j.ToDetail())

	j.SetStatus(job.StatusFinished)
	sch.EmitFinished(j)
}
