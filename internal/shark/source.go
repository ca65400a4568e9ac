package shark

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// SourceKind distinguishes the packet-data origins an appliance offers.
type SourceKind string

const (
	KindJob  SourceKind = "job"
	KindClip SourceKind = "clip"
	KindFile SourceKind = "file"
)

// jobStateRunning is the appliance state for a capture job that is actively
// writing packets.
const jobStateRunning = "RUNNING"

// SourceData is the appliance-owned snapshot of a source. The client caches
// it and refreshes via Source.Update.
type SourceData struct {
	ID     string `json:"id"`
	Config struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"config"`
	Status struct {
		State string `json:"state"`
	} `json:"status"`
}

// Source is a uniform handle over a capture job, trace clip or uploaded
// file.
type Source interface {
	ID() string
	Name() string
	Kind() SourceKind
	// IsLive reports whether the source is still accumulating data. Clips
	// and files are never live.
	IsLive() bool
	Data() SourceData
	// Update refreshes the cached snapshot from the appliance.
	Update(ctx context.Context) error
	// Download streams the source's packets straight to a local pcap file,
	// without going through an Export.
	Download(ctx context.Context, filename string, overwrite bool) error

	apiPath() string
}

type baseSource struct {
	shark *NetShark
	kind  SourceKind
	data  SourceData
}

func (s *baseSource) ID() string       { return s.data.ID }
func (s *baseSource) Name() string     { return s.data.Config.Name }
func (s *baseSource) Kind() SourceKind { return s.kind }
func (s *baseSource) Data() SourceData { return s.data }

func (s *baseSource) apiPath() string {
	switch s.kind {
	case KindJob:
		return s.shark.apiPath("/jobs/" + s.data.ID)
	case KindClip:
		return s.shark.apiPath("/clips/" + s.data.ID)
	default:
		return s.shark.apiPath("/fs/" + strings.TrimPrefix(s.data.ID, "/"))
	}
}

func (s *baseSource) Update(ctx context.Context) error {
	var data SourceData
	if err := s.shark.conn.JSONRequest(ctx, http.MethodGet, s.apiPath(), nil, nil, &data); err != nil {
		return fmt.Errorf("refresh %s %s: %w", s.kind, s.data.ID, err)
	}
	if data.ID != s.data.ID {
		return fmt.Errorf("refresh %s %s: appliance returned id %s", s.kind, s.data.ID, data.ID)
	}
	s.data = data
	return nil
}

func (s *baseSource) Download(ctx context.Context, filename string, overwrite bool) error {
	return s.shark.conn.Download(ctx, s.apiPath()+"/packets", nil, filename, overwrite)
}

// Job is a capture job. Live while the appliance reports it RUNNING.
type Job struct {
	baseSource
}

func (j *Job) IsLive() bool {
	return j.data.Status.State == jobStateRunning
}

// Clip is a trace clip. Never live.
type Clip struct {
	baseSource
}

func (c *Clip) IsLive() bool { return false }

// File is an uploaded trace file. Never live.
type File struct {
	baseSource
}

func (f *File) IsLive() bool { return false }

// SourcePath is the stable textual identity of a source, e.g. "jobs/voip".
func SourcePath(s Source) string {
	switch s.Kind() {
	case KindJob:
		return "jobs/" + s.Name()
	case KindClip:
		return "clips/" + s.ID()
	default:
		return "fs/" + strings.TrimPrefix(s.ID(), "/")
	}
}

// SourceByPath resolves a "jobs/<name>", "clips/<id>" or "fs/<path>" string
// to a live Source handle.
func (ns *NetShark) SourceByPath(ctx context.Context, p string) (Source, error) {
	kind, rest, found := strings.Cut(p, "/")
	if !found || rest == "" {
		return nil, validationf("malformed source path %q", p)
	}
	switch kind {
	case "jobs":
		return ns.GetCaptureJobByName(ctx, rest)
	case "clips":
		return ns.GetTraceClip(ctx, rest)
	case "fs":
		return ns.GetFile(ctx, path.Clean("/"+rest))
	default:
		return nil, validationf("unknown source type %q in path %q", kind, p)
	}
}
