package scheduler

import (
	"context"
	"time"

	"github.com/nuulab/dicomflow/pkg/job"
)

// waitPollInterval is how often the WaitForFinish family re-checks the job
// table. Grounded on the original scheduler's waitForFinish spin loop
// (processEvents + waitForDone(300)); a shorter interval is used here since
// there is no event loop to pump.
const waitPollInterval = 20 * time.Millisecond

// admitLoop scans the pending queue in priority order (spec.md §4.4),
// admitting every Job whose class is currently under its concurrency cap,
// and blocks on cond when a full pass admits nothing.
func (s *Scheduler) admitLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			return
		}
		if s.admitEligibleLocked() {
			continue
		}
		s.cond.Wait()
	}
}

// admitEligibleLocked performs one pass over s.pending in priority order,
// removing and launching every Job currently under its class's
// maximum_concurrent_per_type. Must be called with s.mu held.
func (s *Scheduler) admitEligibleLocked() bool {
	admittedAny := false
	for _, p := range job.Priorities {
		i := 0
		for i < len(s.pending) {
			candidate := s.pending[i]
			if candidate.Priority() != p {
				i++
				continue
			}
			if s.runningByType[candidate.Type()] >= candidate.MaximumConcurrentPerType() {
				i++
				continue
			}
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.runningByType[candidate.Type()]++
			admittedAny = true
			go s.launch(candidate)
		}
	}
	return admittedAny
}

// launch instantiates candidate's Worker and hands it to the bounded
// pool. Holds no lock across the (potentially blocking) pool.Go call.
func (s *Scheduler) launch(candidate *job.Job) {
	w := candidate.CreateWorker(s.deps)
	if w == nil {
		candidate.SetStatus(job.StatusFailed)
		s.EmitFailed(candidate)
		s.finishRunning(candidate)
		return
	}
	w.SetJob(candidate, s)

	s.mu.Lock()
	s.runningWorker[candidate.ID()] = w
	s.mu.Unlock()

	s.pool.Go(func() {
		w.Run(context.Background())
		s.finishRunning(candidate)
	})
}

// finishRunning releases candidate's concurrency-cap slot, closes its
// done channel, removes candidate from the job table if it is not
// persistent and landed in a terminal status or in AttemptFailed (whose
// retry clone is admitted as its own table entry), and wakes the
// admission loop so a
// newly-eligible pending Job can take the freed slot (spec.md §3/§4.4 "on
// terminal status non-persistent jobs are removed from the table").
func (s *Scheduler) finishRunning(candidate *job.Job) {
	s.mu.Lock()
	s.runningByType[candidate.Type()]--
	delete(s.runningWorker, candidate.ID())
	if done, ok := s.doneCh[candidate.ID()]; ok {
		close(done)
		delete(s.doneCh, candidate.ID())
	}
	st := candidate.Status()
	if (st.IsTerminal() || st == job.StatusAttemptFailed) && !candidate.IsPersistent() {
		delete(s.jobs, candidate.ID())
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// RaisePriorityForSeries raises the priority of every pending or running
// non-persistent Job addressing one of seriesUIDs to p, and demotes every
// other non-persistent Job to Low (spec.md §4.4/§8 "a user may promote a
// series already in flight to the front of its class; others are demoted
// to Low"). Grounded on ctkDICOMScheduler::raiseJobsPriorityForSeries,
// generalized to decide each Job's new priority independently rather than
// mutating a single shared variable across the loop. Running Jobs are
// unaffected beyond their Priority field's bookkeeping value, since their
// Worker is already dispatched; only pending admission order changes.
func (s *Scheduler) RaisePriorityForSeries(seriesUIDs []string, p job.Priority) {
	set := make(map[string]struct{}, len(seriesUIDs))
	for _, u := range seriesUIDs {
		set[u] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.IsPersistent() {
			continue
		}
		if _, ok := set[j.SeriesUID()]; ok {
			j.SetPriority(p)
		} else {
			j.SetPriority(job.PriorityLow)
		}
	}
	s.cond.Broadcast()
}

// StopAll transitions every pending Job to UserStopped and cancels every
// running Job's Worker. Persistent (listener) Jobs are left untouched
// unless includePersistent is true (spec.md §8 "stop_all(false) leaves
// every persistent job in its prior state"). Grounded on
// ctkDICOMScheduler::stopAllJobs(bool stopPersistentJobs).
func (s *Scheduler) StopAll(includePersistent bool) {
	s.mu.Lock()
	var workers []job.Worker
	remaining := s.pending[:0:0]
	for _, j := range s.pending {
		if j.IsPersistent() && !includePersistent {
			remaining = append(remaining, j)
			continue
		}
		j.SetStatus(job.StatusUserStopped)
		delete(s.jobs, j.ID())
		delete(s.doneCh, j.ID())
	}
	s.pending = remaining

	for id, w := range s.runningWorker {
		j := s.jobs[id]
		if j != nil && j.IsPersistent() && !includePersistent {
			continue
		}
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.Cancel()
	}
	s.cond.Broadcast()
}

// StopByUIDs transitions every pending Job and cancels every running Job
// whose PatientID, StudyUID, SeriesUID, or SopUID matches one of the
// corresponding filter lists, independently (spec.md §4.4 "stop_by_uids").
// A Job matches if it matches any of the four lists; an empty list never
// contributes a match. If every list is empty, StopByUIDs is a no-op.
// Persistent Jobs are always skipped, regardless of match (grounded on
// ctkDICOMScheduler::stopJobsByUIDs, which never takes an override for
// this entry point).
func (s *Scheduler) StopByUIDs(patientIDs, studyUIDs, seriesUIDs, sopUIDs []string) {
	if len(patientIDs) == 0 && len(studyUIDs) == 0 && len(seriesUIDs) == 0 && len(sopUIDs) == 0 {
		return
	}
	patientSet := toSet(patientIDs)
	studySet := toSet(studyUIDs)
	seriesSet := toSet(seriesUIDs)
	sopSet := toSet(sopUIDs)

	matches := func(j *job.Job) bool {
		if _, ok := patientSet[j.PatientID()]; ok {
			return true
		}
		if _, ok := studySet[j.StudyUID()]; ok {
			return true
		}
		if _, ok := seriesSet[j.SeriesUID()]; ok {
			return true
		}
		if _, ok := sopSet[j.SopUID()]; ok {
			return true
		}
		return false
	}

	s.mu.Lock()
	var workers []job.Worker
	remaining := s.pending[:0:0]
	for _, j := range s.pending {
		if j.IsPersistent() || !matches(j) {
			remaining = append(remaining, j)
			continue
		}
		j.SetStatus(job.StatusUserStopped)
		delete(s.jobs, j.ID())
		delete(s.doneCh, j.ID())
	}
	s.pending = remaining

	for id, w := range s.runningWorker {
		j := s.jobs[id]
		if j == nil || j.IsPersistent() || !matches(j) {
			continue
		}
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.Cancel()
	}
	s.cond.Broadcast()
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// remainingNonPersistentLocked counts jobs in the table that still need
// to drain: not persistent, and (for ones matched) additionally filtered
// by match. Must be called with s.mu held.
func (s *Scheduler) remainingNonPersistentLocked(match func(*job.Job) bool) int {
	n := 0
	for _, j := range s.jobs {
		if j.IsPersistent() {
			continue
		}
		if match != nil && !match(j) {
			continue
		}
		n++
	}
	return n
}

// WaitForFinish blocks until every non-persistent Job has drained out of
// the job table (i.e. ended its run in a terminal or AttemptFailed status
// and been removed), or ctx is cancelled first. A retry clone still
// waiting out its retry delay is not yet in the table and is not waited
// for. Returns immediately if the table is already empty of
// non-persistent Jobs. Grounded on ctkDICOMScheduler::waitForFinish()'s
// polling spin loop, reimplemented with a ticker so it respects ctx
// cancellation instead of pumping an event loop.
func (s *Scheduler) WaitForFinish(ctx context.Context) error {
	s.mu.Lock()
	remaining := s.remainingNonPersistentLocked(nil)
	s.mu.Unlock()
	if remaining == 0 {
		return nil
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			remaining := s.remainingNonPersistentLocked(nil)
			s.mu.Unlock()
			if remaining == 0 {
				return nil
			}
		}
	}
}

// WaitForFinishByUIDs blocks until every currently-tracked, non-persistent
// Job matching one of the four UID lists (independently, as in
// StopByUIDs) has drained out of the job table, or ctx is cancelled first.
// Returns immediately if every list is empty, or if nothing currently
// matches (spec.md §4.4 "wait_for_finish() on an empty queue returns
// immediately").
func (s *Scheduler) WaitForFinishByUIDs(ctx context.Context, patientIDs, studyUIDs, seriesUIDs, sopUIDs []string) error {
	if len(patientIDs) == 0 && len(studyUIDs) == 0 && len(seriesUIDs) == 0 && len(sopUIDs) == 0 {
		return nil
	}
	patientSet := toSet(patientIDs)
	studySet := toSet(studyUIDs)
	seriesSet := toSet(seriesUIDs)
	sopSet := toSet(sopUIDs)

	match := func(j *job.Job) bool {
		if _, ok := patientSet[j.PatientID()]; ok {
			return true
		}
		if _, ok := studySet[j.StudyUID()]; ok {
			return true
		}
		if _, ok := seriesSet[j.SeriesUID()]; ok {
			return true
		}
		if _, ok := sopSet[j.SopUID()]; ok {
			return true
		}
		return false
	}

	s.mu.Lock()
	remaining := s.remainingNonPersistentLocked(match)
	s.mu.Unlock()
	if remaining == 0 {
		return nil
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			remaining := s.remainingNonPersistentLocked(match)
			s.mu.Unlock()
			if remaining == 0 {
				return nil
			}
		}
	}
}
