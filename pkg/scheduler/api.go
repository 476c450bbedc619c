package scheduler

import (
	"errors"
	"fmt"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/responseset"
	"github.com/nuulab/dicomflow/pkg/server"
)

// ErrServerNotFound is returned when an entry point names a
// connection_name absent from the Registry.
var ErrServerNotFound = errors.New("scheduler: server not registered")

// lookupServer resolves connectionName against the Registry or returns
// ErrServerNotFound.
func (s *Scheduler) lookupServer(connectionName string) (*server.Server, error) {
	srv := s.registry.ByName(connectionName)
	if srv == nil {
		return nil, fmt.Errorf("%w: %q", ErrServerNotFound, connectionName)
	}
	return srv, nil
}

// QueryPatients admits a QueryPatients job against connectionName,
// filtered by filters (spec.md §4.1).
func (s *Scheduler) QueryPatients(connectionName string, filters map[string]any, opts ...job.Option) (*job.Job, error) {
	return s.admitQuery(job.LevelPatients, connectionName, filters, opts...)
}

// QueryStudies admits a QueryStudies job against connectionName, scoped
// to patientID when non-empty, filtered by filters (spec.md §4.1).
func (s *Scheduler) QueryStudies(connectionName, patientID string, filters map[string]any, opts ...job.Option) (*job.Job, error) {
	if patientID != "" {
		opts = append(opts, job.WithUIDs(patientID, "", "", ""))
	}
	return s.admitQuery(job.LevelStudies, connectionName, filters, opts...)
}

// QuerySeries admits a QuerySeries job scoped to studyUID (spec.md §4.1).
func (s *Scheduler) QuerySeries(connectionName, patientID, studyUID string, filters map[string]any, opts ...job.Option) (*job.Job, error) {
	opts = append(opts, job.WithUIDs(patientID, studyUID, "", ""))
	return s.admitQuery(job.LevelSeries, connectionName, filters, opts...)
}

// QueryInstances admits a QueryInstances job scoped to seriesUID
// (spec.md §4.1).
func (s *Scheduler) QueryInstances(connectionName, patientID, studyUID, seriesUID string, filters map[string]any, opts ...job.Option) (*job.Job, error) {
	opts = append(opts, job.WithUIDs(patientID, studyUID, seriesUID, ""))
	return s.admitQuery(job.LevelInstances, connectionName, filters, opts...)
}

func (s *Scheduler) admitQuery(level job.DicomLevel, connectionName string, filters map[string]any, opts ...job.Option) (*job.Job, error) {
	srv, err := s.lookupServer(connectionName)
	if err != nil {
		return nil, err
	}
	j := job.NewQueryJob(level, srv, filters, opts...)
	s.admit(j)
	return j, nil
}

// RetrieveStudy admits a RetrieveStudy job against connectionName
// (spec.md §4.6).
func (s *Scheduler) RetrieveStudy(connectionName, patientID, studyUID string, opts ...job.Option) (*job.Job, error) {
	opts = append(opts, job.WithUIDs(patientID, studyUID, "", ""))
	return s.admitRetrieve(job.LevelStudies, connectionName, opts...)
}

// RetrieveSeries admits a RetrieveSeries job against connectionName
// (spec.md §4.6).
func (s *Scheduler) RetrieveSeries(connectionName, patientID, studyUID, seriesUID string, opts ...job.Option) (*job.Job, error) {
	opts = append(opts, job.WithUIDs(patientID, studyUID, seriesUID, ""))
	return s.admitRetrieve(job.LevelSeries, connectionName, opts...)
}

// RetrieveSopInstance admits a RetrieveSopInstance job against
// connectionName (spec.md §4.6).
func (s *Scheduler) RetrieveSopInstance(connectionName, patientID, studyUID, seriesUID, sopUID string, opts ...job.Option) (*job.Job, error) {
	opts = append(opts, job.WithUIDs(patientID, studyUID, seriesUID, sopUID))
	return s.admitRetrieve(job.LevelInstances, connectionName, opts...)
}

func (s *Scheduler) admitRetrieve(level job.DicomLevel, connectionName string, opts ...job.Option) (*job.Job, error) {
	srv, err := s.lookupServer(connectionName)
	if err != nil {
		return nil, err
	}
	j := job.NewRetrieveJob(level, srv, opts...)
	s.admit(j)
	return j, nil
}

// Echo admits a C-ECHO connectivity-test job against connectionName
// (spec.md §4.8).
func (s *Scheduler) Echo(connectionName string, opts ...job.Option) (*job.Job, error) {
	srv, err := s.lookupServer(connectionName)
	if err != nil {
		return nil, err
	}
	j := job.NewEchoJob(srv, opts...)
	s.admit(j)
	return j, nil
}

// StartListener admits the persistent StorageListener job (spec.md
// §4.7). Only one should ever be admitted per process; callers are
// responsible for not starting a second.
func (s *Scheduler) StartListener(payload *job.ListenerPayload, opts ...job.Option) *job.Job {
	j := job.NewListener(payload, opts...)
	s.admit(j)
	return j
}

// ListenerJob returns the currently-admitted StorageListener job, or nil
// if none is running. Grounded on ctkDICOMScheduler::listenerJob(), a
// direct accessor rather than making callers search the job table.
func (s *Scheduler) ListenerJob() *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Type() == job.TypeStorageListener {
			return j
		}
	}
	return nil
}

// IsListenerActive reports whether a StorageListener job is currently
// admitted and has not reached a terminal status (ctkDICOMScheduler::
// isStorageListenerActive()).
func (s *Scheduler) IsListenerActive() bool {
	j := s.ListenerJob()
	return j != nil && !j.Status().IsTerminal()
}

// JobsByDICOMUIDs returns the detail of every currently-tracked Job
// matching one of the four UID lists, independently (spec.md's
// four-list filter shape; grounded on
// ctkDICOMScheduler::getJobsByDICOMUIDs). An empty list never
// contributes a match; if every list is empty, no jobs match.
func (s *Scheduler) JobsByDICOMUIDs(patientIDs, studyUIDs, seriesUIDs, sopUIDs []string) []*responseset.Detail {
	if len(patientIDs) == 0 && len(studyUIDs) == 0 && len(seriesUIDs) == 0 && len(sopUIDs) == 0 {
		return nil
	}
	patientSet := toSet(patientIDs)
	studySet := toSet(studyUIDs)
	seriesSet := toSet(seriesUIDs)
	sopSet := toSet(sopUIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*responseset.Detail
	for _, j := range s.jobs {
		if _, ok := patientSet[j.PatientID()]; ok {
			out = append(out, j.ToDetail())
			continue
		}
		if _, ok := studySet[j.StudyUID()]; ok {
			out = append(out, j.ToDetail())
			continue
		}
		if _, ok := seriesSet[j.SeriesUID()]; ok {
			out = append(out, j.ToDetail())
			continue
		}
		if _, ok := sopSet[j.SopUID()]; ok {
			out = append(out, j.ToDetail())
		}
	}
	return out
}
