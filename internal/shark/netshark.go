// Package shark is a client for the NetShark capture appliance REST API. It
// covers sources (capture jobs, trace clips, uploaded files), the
// asynchronous view protocol, and the packet export lifecycle.
package shark

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/netsharklabs/netshark-go/internal/logger"
	"github.com/netsharklabs/netshark-go/internal/transport"
)

// NetShark is a handle to one appliance. It is cheap to copy around; the
// shared state is the connector it wraps.
type NetShark struct {
	conn    transport.Connector
	version ProtocolVersion
	log     zerolog.Logger
}

// New wraps a connector. Version selects the filter wire encoding; use
// Version5 for current appliances.
func New(conn transport.Connector, version ProtocolVersion) *NetShark {
	return &NetShark{
		conn:    conn,
		version: version,
		log:     logger.L().With().Str("component", "shark").Str("host", conn.Host()).Logger(),
	}
}

// Host returns the appliance host.
func (ns *NetShark) Host() string {
	return ns.conn.Host()
}

// Version returns the protocol version this handle encodes filters for.
func (ns *NetShark) Version() ProtocolVersion {
	return ns.version
}

func (ns *NetShark) apiPath(suffix string) string {
	v := ns.version
	if v == VersionGeneric {
		v = Version5
	}
	return "/api/shark/" + v.String() + suffix
}

// GetCaptureJobs lists the appliance's capture jobs.
func (ns *NetShark) GetCaptureJobs(ctx context.Context) ([]*Job, error) {
	var datas []SourceData
	if err := ns.conn.JSONRequest(ctx, http.MethodGet, ns.apiPath("/jobs"), nil, nil, &datas); err != nil {
		return nil, fmt.Errorf("list capture jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(datas))
	for _, d := range datas {
		jobs = append(jobs, &Job{baseSource{shark: ns, kind: KindJob, data: d}})
	}
	return jobs, nil
}

// GetCaptureJobByName finds a capture job by its configured name.
func (ns *NetShark) GetCaptureJobByName(ctx context.Context, name string) (*Job, error) {
	jobs, err := ns.GetCaptureJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Name() == name {
			return j, nil
		}
	}
	return nil, &ResourceNotFoundError{Kind: "capture job", ID: name}
}

// GetClips lists the appliance's trace clips.
func (ns *NetShark) GetClips(ctx context.Context) ([]*Clip, error) {
	var datas []SourceData
	if err := ns.conn.JSONRequest(ctx, http.MethodGet, ns.apiPath("/clips"), nil, nil, &datas); err != nil {
		return nil, fmt.Errorf("list trace clips: %w", err)
	}
	clips := make([]*Clip, 0, len(datas))
	for _, d := range datas {
		clips = append(clips, &Clip{baseSource{shark: ns, kind: KindClip, data: d}})
	}
	return clips, nil
}

// GetTraceClip finds a trace clip by id.
func (ns *NetShark) GetTraceClip(ctx context.Context, id string) (*Clip, error) {
	clips, err := ns.GetClips(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range clips {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, &ResourceNotFoundError{Kind: "trace clip", ID: id}
}

// GetTraceClipByDescription finds a trace clip by its description.
func (ns *NetShark) GetTraceClipByDescription(ctx context.Context, desc string) (*Clip, error) {
	clips, err := ns.GetClips(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range clips {
		if c.Data().Config.Description == desc {
			return c, nil
		}
	}
	return nil, &ResourceNotFoundError{Kind: "trace clip", ID: desc}
}

// GetFiles lists the trace files stored on the appliance.
func (ns *NetShark) GetFiles(ctx context.Context) ([]*File, error) {
	var datas []SourceData
	if err := ns.conn.JSONRequest(ctx, http.MethodGet, ns.apiPath("/fs"), nil, nil, &datas); err != nil {
		return nil, fmt.Errorf("list trace files: %w", err)
	}
	files := make([]*File, 0, len(datas))
	for _, d := range datas {
		files = append(files, &File{baseSource{shark: ns, kind: KindFile, data: d}})
	}
	return files, nil
}

// GetFile resolves a trace file by its appliance path.
func (ns *NetShark) GetFile(ctx context.Context, fspath string) (*File, error) {
	var data SourceData
	p := ns.apiPath("/fs/" + strings.TrimPrefix(fspath, "/"))
	err := ns.conn.JSONRequest(ctx, http.MethodGet, p, nil, nil, &data)
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, &ResourceNotFoundError{Kind: "trace file", ID: fspath}
		}
		return nil, fmt.Errorf("get trace file %s: %w", fspath, err)
	}
	return &File{baseSource{shark: ns, kind: KindFile, data: data}}, nil
}
