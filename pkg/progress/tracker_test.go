package progress_test

import (
	"testing"

	"github.com/nuulab/dicomflow/pkg/progress"
)

func TestTrackerStartThenUpdateComputesPercent(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")
	tr.SetExpectedTotal("job-1", 4)
	tr.Update("job-1", 2, "halfway")

	snap := tr.Get("job-1")
	if snap == nil {
		t.Fatal("expected a snapshot for job-1")
	}
	if snap.Percent != 50 {
		t.Errorf("expected 50%%, got %d", snap.Percent)
	}
	if snap.Message != "halfway" {
		t.Errorf("expected message %q, got %q", "halfway", snap.Message)
	}
}

func TestTrackerUpdateClampsAt100(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")
	tr.SetExpectedTotal("job-1", 4)
	tr.Update("job-1", 9, "overshoot")

	snap := tr.Get("job-1")
	if snap.Percent != 100 {
		t.Errorf("expected clamped 100%%, got %d", snap.Percent)
	}
}

func TestTrackerUpdateWithoutStartStillTracks(t *testing.T) {
	tr := progress.NewTracker()
	tr.Update("job-2", 1, "progressing")

	snap := tr.Get("job-2")
	if snap == nil {
		t.Fatal("expected Update to create a snapshot if Start was never called")
	}
}

func TestTrackerComplete(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")
	tr.Complete("job-1")

	snap := tr.Get("job-1")
	if snap.Percent != 100 {
		t.Errorf("expected 100%%, got %d", snap.Percent)
	}
	if snap.Message != "complete" {
		t.Errorf("expected message 'complete', got %q", snap.Message)
	}
}

func TestTrackerFail(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")
	tr.Fail("job-1", "connection reset")

	snap := tr.Get("job-1")
	if snap.Message != "failed: connection reset" {
		t.Errorf("unexpected message: %q", snap.Message)
	}
}

func TestTrackerGetReturnsNilForUntracked(t *testing.T) {
	tr := progress.NewTracker()
	if tr.Get("missing") != nil {
		t.Error("expected nil snapshot for an untracked job")
	}
}

func TestTrackerGetReturnsIndependentCopy(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")

	snap := tr.Get("job-1")
	snap.Percent = 99

	fresh := tr.Get("job-1")
	if fresh.Percent == 99 {
		t.Error("expected Get to return a defensive copy, not a shared pointer")
	}
}

func TestTrackerForgetRemovesState(t *testing.T) {
	tr := progress.NewTracker()
	tr.Start("job-1")
	tr.SetExpectedTotal("job-1", 10)
	tr.Forget("job-1")

	if tr.Get("job-1") != nil {
		t.Error("expected snapshot to be discarded after Forget")
	}
}
