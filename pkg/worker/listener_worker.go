package worker

import (
	"context"
	"sync"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/responseset"
)

// defaultBatchFlushInterval is used when a ListenerPayload leaves
// BatchFlushIntervalMs unset.
const defaultBatchFlushInterval = 5 * time.Second

// ListenerWorker runs the persistent storage-listener Job: it accepts
// incoming C-STORE associations for as long as the Job lives, and
// periodically drains whatever instances have landed into a fresh
// Inserter job (spec.md §4.7). Grounded on the teacher's
// BatchProcessor.processBatches collect-with-deadline loop
// (pkg/queue/batch.go).
type ListenerWorker struct {
	base

	mu     sync.Mutex
	buffer []*responseset.ResponseSet
}

func newListenerWorker(deps job.WorkerDeps) job.Worker {
	return &ListenerWorker{base: newBase(deps)}
}

func init() {
	job.RegisterWorkerFactory(job.TypeStorageListener, newListenerWorker)
}

func (w *ListenerWorker) Run(ctx context.Context) {
	j := w.currentJob()
	sch := w.scheduler()
	if j == nil || sch == nil {
		return
	}
	ctx = w.withCancel(ctx)

	payload, ok := j.Payload().(*job.ListenerPayload)
	if !ok {
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
		return
	}

	op := w.deps.NewOperation()
	op.SetJobID(j.ID())
	op.SetCalledAE(payload.AETitle)
	op.SetPort(payload.Port)
	op.SetConnectionTimeout(payload.ConnectionTimeout)
	op.SetProgressFunc(func(rs *responseset.ResponseSet) {
		w.mu.Lock()
		w.buffer = append(w.buffer, rs)
		w.mu.Unlock()
	})

	interval := time.Duration(payload.BatchFlushIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultBatchFlushInterval
	}

	flushDone := make(chan struct{})
	go w.flushLoop(ctx, j, sch, interval, flushDone)

	sch.EmitStarted(j)
	j.SetStatus(job.StatusRunning)

	_, _ = op.Listen(ctx)

	<-flushDone
	w.flush(j, sch)

	if w.wasCancelled() {
		j.SetStatus(job.StatusUserStopped)
		sch.EmitCanceled(j)
		return
	}
	j.SetStatus(job.StatusFinished)
	sch.EmitFinished(j)
}

func (w *ListenerWorker) flushLoop(ctx context.Context, j *job.Job, sch job.Scheduler, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(j, sch)
		}
	}
}

// flush drains the accumulated buffer into a fresh Inserter job. Each
// flush is its own Inserter chain — unlike a one-shot Query/Retrieve job,
// the persistent listener produces many batches over its lifetime
// (spec.md §4.7).
func (w *ListenerWorker) flush(j *job.Job, sch job.Scheduler) {
	w.mu.Lock()
	batch := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if _, err := sch.InsertResponseSets(batch); err == nil {
		sch.EmitProgress(j, j.ToDetail())
	}
}
