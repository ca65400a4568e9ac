package shark

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/netsharklabs/netshark-go/internal/transport"
)

// exportFormat is the only output encoding the client requests:
// microsecond-resolution pcap.
const exportFormat = "PCAP_US"

// exportAttempts bounds the create retry loop when waiting for data.
const exportAttempts = 3

// exportStateRunning is the only state an export can be downloaded in.
const exportStateRunning = "RUNNING"

// DefaultExportWait is the customary sleep between export creation attempts
// when waiting for data.
const DefaultExportWait = 10 * time.Second

// ExportOptions configures CreateExport.
type ExportOptions struct {
	// Filters further narrow the exported packets.
	Filters []Filter
	// WaitForData retries creation when the appliance reports the source
	// has no data yet ("job is empty"), up to 3 attempts in total.
	WaitForData bool
	// WaitDuration is the sleep between attempts. Zero retries without
	// waiting; DefaultExportWait is the customary value.
	WaitDuration time.Duration
}

// Export is a server-side pcap extraction derived from a source and a time
// range. Callers that create one must guarantee Delete on every exit path,
// typically via defer; Delete is idempotent and best-effort.
type Export struct {
	shark  *NetShark
	source Source
	id     string
}

type exportDetails struct {
	ID     string `json:"id"`
	Status struct {
		State string `json:"state"`
	} `json:"status"`
}

// CreateExport requests a pcap export of source bounded to the time filter.
// The "job is empty" condition is the single retried failure; everything
// else wraps and returns immediately. The retry sleep honors ctx, so a
// caller can cancel mid-wait.
func (ns *NetShark) CreateExport(ctx context.Context, source Source, tf TimeFilter, opts ExportOptions) (*Export, error) {
	body := map[string]any{
		"output_format": exportFormat,
		"start_time":    tf.Start.Unix(),
		"end_time":      tf.End.Unix(),
	}
	if len(opts.Filters) > 0 {
		body["filters"] = BindAll(opts.Filters, ns.version)
	}

	var lastMsg string
	for attempt := 1; attempt <= exportAttempts; attempt++ {
		var resp struct {
			ID string `json:"id"`
		}
		err := ns.conn.JSONRequest(ctx, http.MethodPost, source.apiPath()+"/export", body, nil, &resp)
		if err == nil {
			ns.log.Debug().Str("export", resp.ID).Str("source", SourcePath(source)).Msg("export created")
			return &Export{shark: ns, source: source, id: resp.ID}, nil
		}

		var te *transport.Error
		if !errors.As(err, &te) || !strings.Contains(te.Message, "job is empty") {
			return nil, fmt.Errorf("create export from %s: %w", SourcePath(source), err)
		}
		lastMsg = te.Message
		if !opts.WaitForData {
			return nil, &ExportUnavailableError{SourceID: source.ID(), Attempts: attempt, Message: te.Message}
		}
		if attempt == exportAttempts {
			break
		}

		ns.log.Warn().Str("source", SourcePath(source)).Dur("wait", opts.WaitDuration).
			Msg("no data available to export yet, waiting")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("create export from %s: %w", SourcePath(source), ctx.Err())
		case <-time.After(opts.WaitDuration):
		}
	}

	return nil, &ExportUnavailableError{SourceID: source.ID(), Attempts: exportAttempts, Message: lastMsg}
}

// ID is the appliance identifier of this export.
func (e *Export) ID() string { return e.id }

// Source returns the source the export was cut from.
func (e *Export) Source() Source { return e.source }

// Details fetches the export status.
func (e *Export) Details(ctx context.Context) (string, error) {
	var d exportDetails
	if err := e.shark.conn.JSONRequest(ctx, http.MethodGet, e.path(), nil, nil, &d); err != nil {
		return "", fmt.Errorf("get export %s details: %w", e.id, err)
	}
	return d.Status.State, nil
}

// Download streams the export's packets to a local pcap file. It returns
// false without downloading when the export is not in the RUNNING state.
// A successful download deletes the export on the appliance as a side
// effect; a following Delete is still safe.
func (e *Export) Download(ctx context.Context, filename string, overwrite bool) (bool, error) {
	state, err := e.Details(ctx)
	if err != nil {
		return false, err
	}
	if state != exportStateRunning {
		e.shark.log.Debug().Str("export", e.id).Str("state", state).Msg("export not downloadable")
		return false, nil
	}
	if err := e.shark.conn.Download(ctx, e.path()+"/packets", nil, filename, overwrite); err != nil {
		return false, fmt.Errorf("download export %s: %w", e.id, err)
	}
	return true, nil
}

// Delete removes the export on the appliance. Best-effort and idempotent:
// the export may already be gone after a download, so every error is
// swallowed.
func (e *Export) Delete(ctx context.Context) {
	err := e.shark.conn.JSONRequest(ctx, http.MethodDelete, e.path(), nil, nil, nil)
	if err != nil {
		e.shark.log.Debug().Err(err).Str("export", e.id).Msg("export delete ignored")
	}
}

func (e *Export) path() string {
	return e.source.apiPath() + "/export/" + e.id
}
