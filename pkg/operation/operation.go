// Package operation describes the external DICOM wire-protocol contract
// the scheduler core consumes but does not implement (spec.md §1, §6).
// The real C-ECHO/C-FIND/C-GET/C-MOVE/C-STORE engines live outside this
// module; this package only defines the interface a Worker drives.
package operation

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/responseset"
)

// Operation is the contract a Worker drives to completion for one Job.
// Every blocking method must honor Cancel promptly (spec.md §5
// "Cancellation semantics").
type Operation interface {
	// Configuration, mirroring the peer the Job targets.
	SetConnectionName(name string)
	SetCallingAE(ae string)
	SetCalledAE(ae string)
	SetHost(host string)
	SetPort(port int)
	SetConnectionTimeout(seconds int)
	SetMoveDestinationAE(ae string)
	SetKeepAssociationOpen(keep bool)
	SetJobID(id string)
	SetFilters(filters map[string]any)
	// SetProgressFunc registers the callback invoked once per ResponseSet
	// produced, letting the driving Worker forward progress_job_detail
	// events without reaching into the Operation's internals.
	SetProgressFunc(fn ProgressFunc)

	// Query operations. Each returns false on failure, including cancel.
	QueryPatients(ctx context.Context) (bool, error)
	QueryStudies(ctx context.Context, patientID string) (bool, error)
	QuerySeries(ctx context.Context, patientID, studyUID string) (bool, error)
	QueryInstances(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error)

	// Retrieve operations (C-GET style: data returned on this association).
	GetStudy(ctx context.Context, patientID, studyUID string) (bool, error)
	GetSeries(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error)
	GetSopInstance(ctx context.Context, patientID, studyUID, seriesUID, sopUID string) (bool, error)

	// Retrieve operations (C-MOVE style: data pushed to MoveDestinationAE).
	MoveStudy(ctx context.Context, patientID, studyUID string) (bool, error)
	MoveSeries(ctx context.Context, patientID, studyUID, seriesUID string) (bool, error)
	MoveSopInstance(ctx context.Context, patientID, studyUID, seriesUID, sopUID string) (bool, error)

	// Echo verifies connectivity.
	Echo(ctx context.Context) (bool, error)

	// Listen blocks accepting incoming C-STORE associations until
	// cancelled.
	Listen(ctx context.Context) (bool, error)

	// Cancel requests that the Operation stop at its next safe point.
	Cancel()
	// WasCanceled reports whether Cancel was observed and honored.
	WasCanceled() bool

	// ResponseSets returns the accumulated outputs produced so far.
	ResponseSets() []*responseset.ResponseSet
}

// ProgressFunc is invoked by an Operation once per produced ResponseSet,
// letting the Worker forward progress_job_detail events without the
// Operation knowing about the event bus (spec.md §6 "progress_job_detail").
type ProgressFunc func(*responseset.ResponseSet)
