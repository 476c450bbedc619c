// Package api REST handlers for server registration and job admission.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nuulab/dicomflow/pkg/job"
	"github.com/nuulab/dicomflow/pkg/server"
)

// handleServers handles GET/POST /api/servers.
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sch.Registry().All())
	case http.MethodPost:
		var srv server.Server
		if err := json.NewDecoder(r.Body).Decode(&srv); err != nil {
			writeError(w, http.StatusBadRequest, "invalid server payload")
			return
		}
		if err := srv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sch.Registry().Add(&srv)
		writeJSON(w, http.StatusCreated, &srv)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleServer handles GET/DELETE /api/servers/{name}.
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/servers/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing connection name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		srv := s.sch.Registry().ByName(name)
		if srv == nil {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		writeJSON(w, http.StatusOK, srv)
	case http.MethodDelete:
		if !s.sch.Registry().RemoveByName(name) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// jobRequest is the admission payload for POST /api/jobs.
type jobRequest struct {
	Kind           string         `json:"kind"` // query_patients|query_studies|query_series|query_instances|retrieve_study|retrieve_series|retrieve_sop_instance|echo
	ConnectionName string         `json:"connection_name"`
	PatientID      string         `json:"patient_id,omitempty"`
	StudyUID       string         `json:"study_uid,omitempty"`
	SeriesUID      string         `json:"series_uid,omitempty"`
	SopUID         string         `json:"sop_uid,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
	Priority       *int           `json:"priority,omitempty"`
}

func (jr jobRequest) options() []job.Option {
	var opts []job.Option
	if jr.Priority != nil {
		opts = append(opts, job.WithPriority(job.Priority(*jr.Priority)))
	}
	return opts
}

// handleJobs handles POST /api/jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.admitJob(w, r)
}

func (s *Server) admitJob(w http.ResponseWriter, r *http.Request) {
	var jr jobRequest
	if err := json.NewDecoder(r.Body).Decode(&jr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job payload")
		return
	}

	var (
		j   *job.Job
		err error
	)
	opts := jr.options()

	switch jr.Kind {
	case "query_patients":
		j, err = s.sch.QueryPatients(jr.ConnectionName, jr.Filters, opts...)
	case "query_studies":
		j, err = s.sch.QueryStudies(jr.ConnectionName, jr.PatientID, jr.Filters, opts...)
	case "query_series":
		j, err = s.sch.QuerySeries(jr.ConnectionName, jr.PatientID, jr.StudyUID, jr.Filters, opts...)
	case "query_instances":
		j, err = s.sch.QueryInstances(jr.ConnectionName, jr.PatientID, jr.StudyUID, jr.SeriesUID, jr.Filters, opts...)
	case "retrieve_study":
		j, err = s.sch.RetrieveStudy(jr.ConnectionName, jr.PatientID, jr.StudyUID, opts...)
	case "retrieve_series":
		j, err = s.sch.RetrieveSeries(jr.ConnectionName, jr.PatientID, jr.StudyUID, jr.SeriesUID, opts...)
	case "retrieve_sop_instance":
		j, err = s.sch.RetrieveSopInstance(jr.ConnectionName, jr.PatientID, jr.StudyUID, jr.SeriesUID, jr.SopUID, opts...)
	case "echo":
		j, err = s.sch.Echo(jr.ConnectionName, opts...)
	default:
		writeError(w, http.StatusBadRequest, "unknown job kind: "+jr.Kind)
		return
	}

	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, j.ToDetail())
}

// handleJob handles GET/DELETE /api/jobs/{id}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		j := s.sch.Job(id)
		if j == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, j.ToDetail())
	case http.MethodDelete:
		j := s.sch.Job(id)
		if j == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.sch.StopByUIDs([]string{j.PatientID()}, []string{j.StudyUID()}, []string{j.SeriesUID()}, []string{j.SopUID()})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listenerRequest is the payload for POST /api/listener.
type listenerRequest struct {
	Port                 int    `json:"port"`
	AETitle              string `json:"ae_title"`
	ConnectionTimeout    int    `json:"connection_timeout,omitempty"`
	BatchFlushIntervalMs int    `json:"batch_flush_interval_ms,omitempty"`
}

// handleListener handles POST /api/listener, starting the persistent
// storage-listener Job (spec.md §4.7).
func (s *Server) handleListener(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var lr listenerRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid listener payload")
		return
	}

	j := s.sch.StartListener(&job.ListenerPayload{
		Port:                 lr.Port,
		AETitle:              lr.AETitle,
		ConnectionTimeout:    lr.ConnectionTimeout,
		BatchFlushIntervalMs: lr.BatchFlushIntervalMs,
	})
	writeJSON(w, http.StatusAccepted, j.ToDetail())
}

// handleDLQ handles GET /api/dlq.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.sch.DLQ().Entries())
}
