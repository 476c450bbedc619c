package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
)

// ID is a fresh, immutable, universally unique identifier assigned at job
// creation (spec.md §3).
type ID = string

// NewID mints a fresh JobID using github.com/google/uuid, replacing the
// teacher's hand-rolled crypto/rand hex generator (see SPEC_FULL Domain
// Stack).
func NewID() ID { return uuid.NewString() }

// Defaults mirror spec.md §3.
const (
	DefaultMaximumRetries             = 3
	DefaultRetryDelayMs               = 100
	DefaultMaximumConcurrentPerType   = 20
	InserterMaximumConcurrentPerType  = 1
)

// Job is an admission-queue record: identity, classification, state,
// retry counters, priority, hierarchy-level filter parameters, and the
// ResponseSets produced so far (spec.md §3).
type Job struct {
	mu sync.Mutex

	id        ID
	status    Status
	priority  Priority
	createdAt time.Time

	retryCounter             int
	maximumRetries           int
	retryDelayMs             int
	maximumConcurrentPerType int
	isPersistent             bool

	level     DicomLevel
	patientID string
	studyUID  string
	seriesUID string
	sopUID    string

	payload Payload

	referenceInserterJobID string
	responseSets           []*responseset.ResponseSet
}

// Option configures a Job at construction time.
type Option func(*Job)

// WithPriority overrides the default priority (Low).
func WithPriority(p Priority) Option { return func(j *Job) { j.priority = p } }

// WithMaximumRetries overrides the default maximum retry count.
func WithMaximumRetries(n int) Option { return func(j *Job) { j.maximumRetries = n } }

// WithRetryDelayMs overrides the default retry delay.
func WithRetryDelayMs(ms int) Option { return func(j *Job) { j.retryDelayMs = ms } }

// WithMaximumConcurrentPerType overrides the default per-class cap.
func WithMaximumConcurrentPerType(n int) Option {
	return func(j *Job) { j.maximumConcurrentPerType = n }
}

// WithUIDs sets the hierarchy filter parameters a query/retrieve job
// addresses.
func WithUIDs(patientID, studyUID, seriesUID, sopUID string) Option {
	return func(j *Job) {
		j.patientID = patientID
		j.studyUID = studyUID
		j.seriesUID = seriesUID
		j.sopUID = sopUID
	}
}

// New creates a Job in the Initialized state for the given level and
// payload, applying defaults from spec.md §3 and then any Options.
func New(level DicomLevel, payload Payload, opts ...Option) *Job {
	j := &Job{
		id:                       NewID(),
		status:                   StatusInitialized,
		priority:                 DefaultPriority,
		createdAt:                time.Now(),
		maximumRetries:           DefaultMaximumRetries,
		retryDelayMs:             DefaultRetryDelayMs,
		maximumConcurrentPerType: DefaultMaximumConcurrentPerType,
		level:                    level,
		payload:                  payload,
	}
	if payload != nil && payload.JobType(level) == TypeInserter {
		j.maximumConcurrentPerType = InserterMaximumConcurrentPerType
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// NewListener creates the persistent StorageListener Job.
func NewListener(payload *ListenerPayload, opts ...Option) *Job {
	j := New(LevelNone, payload, opts...)
	j.isPersistent = true
	return j
}

// NewQueryJob creates a Query{level} Job against srv, scoped by the given
// hierarchy UIDs and C-FIND filter keys (spec.md §4.1).
func NewQueryJob(level DicomLevel, srv *server.Server, filters map[string]any, opts ...Option) *Job {
	return New(level, &QueryPayload{Server: srv, Filters: filters}, opts...)
}

// NewRetrieveJob creates a Retrieve{level} Job against srv (spec.md §4.6).
func NewRetrieveJob(level DicomLevel, srv *server.Server, opts ...Option) *Job {
	return New(level, &RetrievePayload{Server: srv}, opts...)
}

// NewEchoJob creates a C-ECHO connectivity-test Job against srv
// (spec.md §4.8).
func NewEchoJob(srv *server.Server, opts ...Option) *Job {
	return New(LevelNone, &EchoPayload{Server: srv}, opts...)
}

// NewInserterJob creates an Inserter Job that drains ResponseSets into
// store (spec.md §4.5).
func NewInserterJob(payload *InserterPayload, opts ...Option) *Job {
	return New(LevelNone, payload, opts...)
}

// NewThumbnailJob creates a ThumbnailGenerator Job for a single SOP
// instance already on disk (spec.md §4).
func NewThumbnailJob(payload *ThumbnailPayload, opts ...Option) *Job {
	return New(LevelInstances, payload, opts...)
}

func (j *Job) ID() ID { return j.id }

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// SetStatus transitions the Job's status. It is a no-op once the Job has
// reached a terminal status (spec.md §3 "Once status is terminal, no
// further fields mutate.").
func (j *Job) SetStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return
	}
	j.status = s
}

func (j *Job) Priority() Priority {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.priority
}

// SetPriority changes the Job's admission priority. Used by
// RaisePriorityForSeries (spec.md §4.4); has no effect on terminal jobs.
func (j *Job) SetPriority(p Priority) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return
	}
	j.priority = p
}

func (j *Job) RetryCounter() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.retryCounter
}

func (j *Job) MaximumRetries() int             { return j.maximumRetries }
func (j *Job) RetryDelayMs() int               { return j.retryDelayMs }
func (j *Job) MaximumConcurrentPerType() int   { return j.maximumConcurrentPerType }
func (j *Job) IsPersistent() bool              { return j.isPersistent }
func (j *Job) Level() DicomLevel               { return j.level }
func (j *Job) PatientID() string               { return j.patientID }
func (j *Job) StudyUID() string                { return j.studyUID }
func (j *Job) SeriesUID() string               { return j.seriesUID }
func (j *Job) SopUID() string                  { return j.sopUID }
func (j *Job) CreatedAt() time.Time            { return j.createdAt }
func (j *Job) Payload() Payload                { return j.payload }

// Type derives the concrete JobType from the payload and level
// (spec.md §3).
func (j *Job) Type() Type {
	if j.payload == nil {
		return TypeNone
	}
	return j.payload.JobType(j.level)
}

func (j *Job) ReferenceInserterJobID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.referenceInserterJobID
}

// SetReferenceInserterJobID records the Inserter JobID enqueued for this
// Job's results (spec.md §4.3).
func (j *Job) SetReferenceInserterJobID(id ID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.referenceInserterJobID = id
}

// AppendResponseSet attaches a produced ResponseSet to this Job.
func (j *Job) AppendResponseSet(rs *responseset.ResponseSet) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.responseSets = append(j.responseSets, rs)
}

// ResponseSets returns a snapshot of every ResponseSet produced so far.
func (j *Job) ResponseSets() []*responseset.ResponseSet {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*responseset.ResponseSet(nil), j.responseSets...)
}

// Clone produces a successor carrying every configuration field except
// runtime state: response sets are cleared and retry_counter is
// preserved verbatim for the caller to adjust (spec.md §4.2 "Clone
// rule"). The retry helper increments retry_counter explicitly after
// Clone returns; proxy re-dispatch does not use Clone and builds a fresh
// Retrieve job instead, which starts at zero (spec.md §9 Open Questions).
func (j *Job) Clone() *Job {
	j.mu.Lock()
	clone := &Job{
		id:                       NewID(),
		status:                   StatusInitialized,
		priority:                 j.priority,
		createdAt:                time.Now(),
		retryCounter:             j.retryCounter,
		maximumRetries:           j.maximumRetries,
		retryDelayMs:             j.retryDelayMs,
		maximumConcurrentPerType: j.maximumConcurrentPerType,
		isPersistent:             j.isPersistent,
		level:                    j.level,
		patientID:                j.patientID,
		studyUID:                 j.studyUID,
		seriesUID:                j.seriesUID,
		sopUID:                   j.sopUID,
	}
	payload := j.payload
	j.mu.Unlock()

	if payload != nil {
		clone.payload = payload.Clone()
	}
	return clone
}

// WithRetryCounter returns j after setting its retry_counter — used by the
// retry helper to set clone.retry_counter = predecessor.retry_counter + 1
// (spec.md §4.2).
func (j *Job) WithRetryCounter(n int) *Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.retryCounter = n
	return j
}

// ToDetail projects the Job into its JobDetail event payload
// (spec.md §6).
func (j *Job) ToDetail() *responseset.Detail {
	j.mu.Lock()
	defer j.mu.Unlock()

	d := &responseset.Detail{
		JobClass:               string(j.payloadType()),
		JobID:                  j.id,
		DicomLevel:             j.level.String(),
		PatientID:              j.patientID,
		StudyUID:               j.studyUID,
		SeriesUID:              j.seriesUID,
		SopUID:                 j.sopUID,
		ReferenceInserterJobID: j.referenceInserterJobID,
		NumberOfDatasets:       countDatasets(j.responseSets),
	}
	if srv := serverOf(j.payload); srv != nil {
		d.ConnectionName = srv.ConnectionName
	}
	return d
}

func (j *Job) payloadType() Type {
	if j.payload == nil {
		return TypeNone
	}
	return j.payload.JobType(j.level)
}

func countDatasets(sets []*responseset.ResponseSet) int {
	n := 0
	for _, s := range sets {
		n += s.NumDatasets()
	}
	return n
}

// serverOf extracts the Server a payload addresses, if any. Listener and
// Inserter payloads have no Server, so ToDetail's ConnectionName is left
// blank for those.
func serverOf(p Payload) *server.Server {
	switch v := p.(type) {
	case *QueryPayload:
		return v.Server
	case *RetrievePayload:
		return v.Server
	case *EchoPayload:
		return v.Server
	default:
		return nil
	}
}

// CreateWorker instantiates the concrete Worker matching this Job's
// variant (spec.md §4.2). Returns nil if no factory is registered for the
// Job's Type (e.g. pkg/worker was never imported).
func (j *Job) CreateWorker(deps WorkerDeps) Worker {
	factory, ok := workerFactories[j.Type()]
	if !ok {
		return nil
	}
	return factory(deps)
}
