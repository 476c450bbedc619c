package operation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nuulab/dicomflow/pkg/responseset"
)

// Mock is a deterministic fake Operation for tests and examples. It
// records every configuration setter call and lets the test script how
// many verb calls fail before the verbs start succeeding, mirroring the
// teacher's pattern of hand-written test doubles satisfying an interface
// (e.g. a fake core.LLM in the agent package tests) rather than a
// generated mock.
type Mock struct {
	mu sync.Mutex

	ConnectionName string
	CallingAE      string
	CalledAE       string
	Host           string
	Port           int
	Timeout        int
	MoveDestAE     string
	KeepOpen       bool
	JobID          string
	Filters        map[string]any

	// FailuresBeforeSuccess, if > 0, makes the first this-many verb calls
	// (query/get/move/echo, counted together across all verbs) return
	// (false, nil); later calls return (true, nil).
	FailuresBeforeSuccess int
	attempts              int32

	// AlwaysFail makes every verb return (false, err) forever.
	AlwaysFail error

	// Produce is called on every successful verb invocation to let the
	// test attach ResponseSets; it may be nil.
	Produce func(verb string) []*responseset.ResponseSet

	// OnProgress, if set, is invoked once per produced ResponseSet before
	// it is appended to responseSets, standing in for the real
	// Operation's progress_job_detail stream.
	OnProgress ProgressFunc

	responseSets []*responseset.ResponseSet
	canceled     atomic.Bool
}

// NewMock creates a Mock that succeeds immediately.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) SetConnectionName(name string)           { m.ConnectionName = name }
func (m *Mock) SetCallingAE(ae string)                  { m.CallingAE = ae }
func (m *Mock) SetCalledAE(ae string)                   { m.CalledAE = ae }
func (m *Mock) SetHost(host string)                     { m.Host = host }
func (m *Mock) SetPort(port int)                        { m.Port = port }
func (m *Mock) SetConnectionTimeout(seconds int)        { m.Timeout = seconds }
func (m *Mock) SetMoveDestinationAE(ae string)          { m.MoveDestAE = ae }
func (m *Mock) SetKeepAssociationOpen(keep bool)        { m.KeepOpen = keep }
func (m *Mock) SetJobID(id string)                      { m.JobID = id }
func (m *Mock) SetFilters(filters map[string]any)       { m.Filters = filters }
func (m *Mock) SetProgressFunc(fn ProgressFunc)         { m.OnProgress = fn }

func (m *Mock) Cancel()            { m.canceled.Store(true) }
func (m *Mock) WasCanceled() bool  { return m.canceled.Load() }

func (m *Mock) ResponseSets() []*responseset.ResponseSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*responseset.ResponseSet(nil), m.responseSets...)
}

// attempt is the shared body for every verb: honor cancellation, honor the
// scripted failure count, then optionally produce ResponseSets.
func (m *Mock) attempt(ctx context.Context, verb string) (bool, error) {
	select {
	case <-ctx.Done():
		m.canceled.Store(true)
		return false, ctx.Err()
	default:
	}

	if m.canceled.Load() {
		return false, nil
	}

	if m.AlwaysFail != nil {
		return false, m.AlwaysFail
	}

	n := atomic.AddInt32(&m.attempts, 1)
	if int(n) <= m.FailuresBeforeSuccess {
		return false, nil
	}

	if m.Produce != nil {
		sets := m.Produce(verb)
		m.mu.Lock()
		for _, rs := range sets {
			if m.OnProgress != nil {
				m.OnProgress(rs)
			}
			m.responseSets = append(m.responseSets, rs)
		}
		m.mu.Unlock()
	}

	return true, nil
}

func (m *Mock) QueryPatients(ctx context.Context) (bool, error) { return m.attempt(ctx, "query_patients") }
func (m *Mock) QueryStudies(ctx context.Context, patientID string) (bool, error) {
	return m.attempt(ctx, "query_studies")
}
func (m *Mock) QuerySeries(ctx context.Context, patientID, studyUID string) (bool, error) {
	return m.attempt(ctx, "query_series")
}
func (m *Mock) QueryInstances(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error) {
	return m.attempt(ctx, "query_instances")
}

func (m *Mock) GetStudy(ctx context.Context, patientID, studyUID string) (bool, error) {
	return m.attempt(ctx, "get_study")
}
func (m *Mock) GetSeries(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error) {
	return m.attempt(ctx, "get_series")
}
func (m *Mock) GetSopInstance(ctx context.Context, patientID, studyUID, seriesUID, sopUID string) (bool, error) {
	return m.attempt(ctx, "get_sop_instance")
}

func (m *Mock) MoveStudy(ctx context.Context, patientID, studyUID string) (bool, error) {
	return m.attempt(ctx, "move_study")
}
func (m *Mock) MoveSeries(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error) {
	return m.attempt(ctx, "move_series")
}
func (m *Mock) MoveSopInstance(ctx context.Context, patientID, studyUID, seriesUID, sopUID string) (bool, error) {
	return m.attempt(ctx, "move_sop_instance")
}

func (m *Mock) Echo(ctx context.Context) (bool, error) { return m.attempt(ctx, "echo") }

func (m *Mock) Listen(ctx context.Context) (bool, error) {
	<-ctx.Done()
	m.canceled.Store(true)
	return true, nil
}
