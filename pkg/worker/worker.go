// Package worker implements the concrete Worker for each Job variant,
// driving an Operation to completion and reporting back through the
// Scheduler facade (spec.md §4, §9 "Worker is another trait {set_job,
// run, cancel}"). Grounded on the teacher's queue.Worker processing loop
// (pkg/queue/queue.go), generalized from a single generic handler map to
// one concrete Worker type per Job variant.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/operation"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
)

// base holds the fields and run-loop helpers shared by every concrete
// Worker (spec.md §4.2's "instantiate worker / set_job / run / cancel"
// cycle).
type base struct {
	mu   sync.Mutex
	job  *job.Job
	sch  job.Scheduler
	deps job.WorkerDeps

	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func newBase(deps job.WorkerDeps) base {
	return base{deps: deps}
}

// SetJob implements the job.Worker contract's configuration step.
func (b *base) SetJob(j *job.Job, sched job.Scheduler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.job = j
	b.sch = sched
}

// Cancel implements the job.Worker contract's cooperative-cancel step. It
// always records that cancellation was requested, even for workers (like
// Inserter) whose Run never observes the derived context — see
// wasCancelled.
func (b *base) Cancel() {
	b.cancelled.Store(true)
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *base) wasCancelled() bool { return b.cancelled.Load() }

func (b *base) currentJob() *job.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.job
}

func (b *base) scheduler() job.Scheduler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sch
}

// withCancel derives a cancellable context from ctx and records its
// cancel func so Cancel() can trigger it later.
func (b *base) withCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	return ctx
}

// newOperation builds and configures an Operation against srv, wiring its
// progress callback to append the produced ResponseSet to j and emit a
// progress_job_detail event (spec.md §6).
func newOperation(deps job.WorkerDeps, j *job.Job, sch job.Scheduler, srv *server.Server) operation.Operation {
	op := deps.NewOperation()
	op.SetJobID(j.ID())
	op.SetConnectionName(srv.ConnectionName)
	op.SetCallingAE(srv.CallingAE)
	op.SetCalledAE(srv.CalledAE)
	op.SetHost(srv.Host)
	op.SetPort(srv.Port)
	op.SetConnectionTimeout(srv.ConnectionTimeout)
	op.SetMoveDestinationAE(srv.MoveDestinationAE)
	op.SetKeepAssociationOpen(srv.KeepAssociationOpen)
	op.SetProgressFunc(func(rs *responseset.ResponseSet) {
		j.AppendResponseSet(rs)
		sch.EmitProgress(j, j.ToDetail())
	})
	return op
}

// verbResult is what a single Operation verb call yields: whether it
// succeeded, and any error. Mirrors Operation's (bool, error) convention
// (spec.md §6).
type verbResult struct {
	ok  bool
	err error
}

// classify turns a verb's result into the terminal-or-retry decision
// spec.md §7 describes. A (false, nil) result (the scripted-failure path
// test doubles use) is treated as a transient failure.
func classify(r verbResult) error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return job.ErrTransient
	}
	if errors.Is(r.err, context.Canceled) {
		return job.ErrUserCanceled
	}
	return r.err
}

// runAttempt drives a single pass of op through fn, then resolves the Job
// to its terminal/retry outcome per spec.md §4.2/§7:
//
//   - success: emit finished, return.
//   - canceled: emit user_job_canceled, return.
//   - failure below the retry ceiling: emit attempt_failed, admit a
//     retry-clone with an incremented retry_counter after retry_delay_ms.
//   - failure at/above the ceiling, or a non-retryable error: emit
//     failed (ExhaustedRetries or the original classification).
func runAttempt(ctx context.Context, j *job.Job, sch job.Scheduler, op operation.Operation, fn func(context.Context) (bool, error)) {
	sch.EmitStarted(j)
	j.SetStatus(job.StatusRunning)

	ok, err := fn(ctx)
	cause := classify(verbResult{ok: ok, err: err})

	switch {
	case cause == nil:
		j.SetStatus(job.StatusFinished)
		sch.EmitFinished(j)

	case errors.Is(cause, job.ErrUserCanceled) || op.WasCanceled():
		j.SetStatus(job.StatusUserStopped)
		sch.EmitCanceled(j)

	case job.IsRetryable(cause) && j.RetryCounter() < j.MaximumRetries():
		j.SetStatus(job.StatusAttemptFailed)
		sch.EmitAttemptFailed(j)
		scheduleRetry(j, sch)

	default:
		j.SetStatus(job.StatusFailed)
		sch.EmitFailed(j)
	}
}

// scheduleRetry admits a clone of j with retry_counter incremented once
// retry_delay_ms has elapsed (spec.md §4.2). The pending admission is not
// withdrawn by a stop request that arrives during the delay.
func scheduleRetry(j *job.Job, sch job.Scheduler) {
	delay := time.Duration(j.RetryDelayMs()) * time.Millisecond
	clone := j.Clone().WithRetryCounter(j.RetryCounter() + 1)
	time.AfterFunc(delay, func() {
		sch.AdmitClone(clone)
	})
}

// flushToInserter hands the ResponseSets an Operation produced off to a
// fresh Inserter job and records the reference on j (spec.md §4.3 "at
// most one Inserter job is enqueued per originating chain").
func flushToInserter(j *job.Job, sch job.Scheduler, sets []*responseset.ResponseSet) {
	if j.Status() != job.StatusFinished {
		return
	}
	if len(sets) == 0 {
		return
	}
	if j.ReferenceInserterJobID() != "" {
		return
	}
	id, err := sch.InsertResponseSets(sets)
	if err != nil {
		return
	}
	j.SetReferenceInserterJobID(id)
}
