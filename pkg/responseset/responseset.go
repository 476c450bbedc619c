// Package responseset defines the unit of delivery from an Operation to
// the Inserter, and the event payload projected from it (spec.md §3).
package responseset

// Dataset is an opaque DICOM dataset handle. The core never interprets
// its contents; parsing/rendering is explicitly out of scope (spec.md §1).
type Dataset any

// ResponseSet is one unit of delivery from an Operation to the Inserter.
type ResponseSet struct {
	JobType        string
	JobID          string
	PatientID      string
	StudyUID       string
	SeriesUID      string
	SopUID         string
	ConnectionName string
	FilePath       string

	CopyFile         bool
	OverwriteExisting bool

	// Dataset is set when this ResponseSet carries exactly one dataset.
	Dataset Dataset
	// Datasets is set when this ResponseSet carries a UID-keyed map of
	// datasets (e.g. a series-level retrieve yielding many instances).
	Datasets map[string]Dataset
}

// Clone performs a deep copy of the ResponseSet, including its dataset
// map, so hand-off to the Inserter cannot be mutated by the producer
// afterward (spec.md §8 "ResponseSet hand-off").
func (r *ResponseSet) Clone() *ResponseSet {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Datasets != nil {
		clone.Datasets = make(map[string]Dataset, len(r.Datasets))
		for k, v := range r.Datasets {
			clone.Datasets[k] = v
		}
	}
	return &clone
}

// CloneAll deep-copies a slice of ResponseSets.
func CloneAll(sets []*ResponseSet) []*ResponseSet {
	out := make([]*ResponseSet, len(sets))
	for i, s := range sets {
		out[i] = s.Clone()
	}
	return out
}

// NumDatasets returns how many datasets this ResponseSet carries, counting
// either the single Dataset or every entry of Datasets.
func (r *ResponseSet) NumDatasets() int {
	if r == nil {
		return 0
	}
	if r.Datasets != nil {
		return len(r.Datasets)
	}
	if r.Dataset != nil {
		return 1
	}
	return 0
}
