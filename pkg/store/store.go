// Package store describes the external local persistent DICOM database
// the scheduler core inserts into but does not implement (spec.md §1, §6).
package store

import (
	"context"

	"github.com/nuulab/dicomflow/pkg/responseset"
)

// Store is the contract an Inserter Worker drives. The real DICOM
// database, its SQLite-style file, and its query-by-hierarchy read paths
// are all out of scope for this module (spec.md §1); this interface is
// the seam.
type Store interface {
	// InsertBatch persists a batch of ResponseSets under inserter-job
	// context, respecting each set's CopyFile/OverwriteExisting flags.
	InsertBatch(ctx context.Context, sets []*responseset.ResponseSet) error

	// TagsToPrecache lists the DICOM tags the Store wants cached eagerly.
	TagsToPrecache() []string
	// TagsToExcludeFromStorage lists tags the Store should not persist.
	TagsToExcludeFromStorage() []string
	// DatabaseFilename is the path to the Store's backing database file.
	DatabaseFilename() string
}
