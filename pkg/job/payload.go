package job

import "github.com/nuulab/dicomflow/pkg/server"

// Payload carries the per-variant configuration of a Job: everything
// Clone() must copy except runtime state (spec.md §4.2 "Clone rule").
type Payload interface {
	// JobType resolves the concrete Type for this payload at the given
	// DicomLevel.
	JobType(level DicomLevel) Type
	// Clone deep-copies the payload's configuration.
	Clone() Payload
}

// QueryPayload configures a Query{level} job (spec.md §3).
type QueryPayload struct {
	Server  *server.Server
	Filters map[string]any
}

func (p *QueryPayload) JobType(level DicomLevel) Type {
	switch level {
	case LevelPatients:
		return TypeQueryPatients
	case LevelStudies:
		return TypeQueryStudies
	case LevelSeries:
		return TypeQuerySeries
	case LevelInstances:
		return TypeQueryInstances
	default:
		return TypeNone
	}
}

func (p *QueryPayload) Clone() Payload {
	filters := make(map[string]any, len(p.Filters))
	for k, v := range p.Filters {
		filters[k] = v
	}
	return &QueryPayload{Server: p.Server.Clone(), Filters: filters}
}

// RetrievePayload configures a Retrieve{level} job (spec.md §3, §4.6).
type RetrievePayload struct {
	Server *server.Server
}

func (p *RetrievePayload) JobType(level DicomLevel) Type {
	switch level {
	case LevelStudies:
		return TypeRetrieveStudy
	case LevelSeries:
		return TypeRetrieveSeries
	case LevelInstances:
		return TypeRetrieveSopInst
	default:
		return TypeNone
	}
}

func (p *RetrievePayload) Clone() Payload {
	return &RetrievePayload{Server: p.Server.Clone()}
}

// EchoPayload configures an Echo job; it carries only a Server reference
// (spec.md §4.8).
type EchoPayload struct {
	Server *server.Server
}

func (p *EchoPayload) JobType(DicomLevel) Type { return TypeEcho }
func (p *EchoPayload) Clone() Payload          { return &EchoPayload{Server: p.Server.Clone()} }

// ListenerPayload configures the persistent StorageListener job
// (spec.md §4.7).
type ListenerPayload struct {
	Port              int
	AETitle           string
	ConnectionTimeout int
	// BatchFlushIntervalMs is how often accumulated response sets are
	// drained into an Inserter; spec.md §4.7/§9 allow a count-based
	// trigger instead of a strict timer, so this is expressed as a
	// duration in milliseconds to stay implementation-neutral.
	BatchFlushIntervalMs int
}

func (p *ListenerPayload) JobType(DicomLevel) Type { return TypeStorageListener }
func (p *ListenerPayload) Clone() Payload {
	clone := *p
	return &clone
}

// InserterPayload configures an Inserter job: the configuration the Store
// needs (spec.md §4.5).
type InserterPayload struct {
	DatabaseFilename          string
	TagsToPrecache            []string
	TagsToExcludeFromStorage  []string
}

func (p *InserterPayload) JobType(DicomLevel) Type { return TypeInserter }
func (p *InserterPayload) Clone() Payload {
	return &InserterPayload{
		DatabaseFilename:         p.DatabaseFilename,
		TagsToPrecache:           append([]string(nil), p.TagsToPrecache...),
		TagsToExcludeFromStorage: append([]string(nil), p.TagsToExcludeFromStorage...),
	}
}

// ThumbnailPayload configures a ThumbnailGenerator job.
type ThumbnailPayload struct {
	SopUID   string
	FilePath string
}

func (p *ThumbnailPayload) JobType(DicomLevel) Type { return TypeThumbnailGenerator }
func (p *ThumbnailPayload) Clone() Payload {
	clone := *p
	return &clone
}
