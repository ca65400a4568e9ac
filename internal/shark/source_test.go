package shark

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsharklabs/netshark-go/internal/transport"
)

func sourcesHandler(method, path string, body any, params url.Values) (any, error) {
	switch {
	case method == http.MethodGet && path == "/api/shark/5.0/jobs":
		return []SourceData{jobData("j1", "voip", "RUNNING"), jobData("j2", "backbone", "STOPPED")}, nil
	case method == http.MethodGet && path == "/api/shark/5.0/clips":
		c := jobData("c1", "", "")
		c.Config.Description = "friday incident"
		return []SourceData{c}, nil
	case method == http.MethodGet && path == "/api/shark/5.0/fs/traces/noon.pcap":
		d := jobData("/traces/noon.pcap", "", "")
		return d, nil
	}
	return nil, &transport.Error{StatusCode: http.StatusNotFound, Message: "no handler", Method: method, Path: path}
}

func TestJobLiveness(t *testing.T) {
	ns := New(newFakeConn(sourcesHandler), Version5)

	jobs, err := ns.GetCaptureJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].IsLive())
	assert.False(t, jobs[1].IsLive())
}

func TestGetCaptureJobByName(t *testing.T) {
	ns := New(newFakeConn(sourcesHandler), Version5)

	j, err := ns.GetCaptureJobByName(context.Background(), "backbone")
	require.NoError(t, err)
	assert.Equal(t, "j2", j.ID())

	_, err = ns.GetCaptureJobByName(context.Background(), "nope")
	var nf *ResourceNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetTraceClipByDescription(t *testing.T) {
	ns := New(newFakeConn(sourcesHandler), Version5)

	c, err := ns.GetTraceClipByDescription(context.Background(), "friday incident")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID())
	assert.False(t, c.IsLive())
}

func TestSourcePathRoundTrip(t *testing.T) {
	ns := New(newFakeConn(sourcesHandler), Version5)
	ctx := context.Background()

	for _, p := range []string{"jobs/voip", "clips/c1", "fs/traces/noon.pcap"} {
		s, err := ns.SourceByPath(ctx, p)
		require.NoError(t, err, p)
		assert.Equal(t, p, SourcePath(s))
	}

	_, err := ns.SourceByPath(ctx, "jobs")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = ns.SourceByPath(ctx, "disks/sda")
	require.ErrorAs(t, err, &verr)
}

func TestSourceUpdateVerifiesIdentity(t *testing.T) {
	swapped := false
	conn := newFakeConn(func(method, path string, body any, params url.Values) (any, error) {
		if method == http.MethodGet && path == "/api/shark/5.0/jobs/j1" {
			if swapped {
				return jobData("j9", "voip", "STOPPED"), nil
			}
			return jobData("j1", "voip", "STOPPED"), nil
		}
		return sourcesHandler(method, path, body, params)
	})
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "RUNNING")

	require.NoError(t, job.Update(context.Background()))
	assert.False(t, job.IsLive())

	swapped = true
	require.Error(t, job.Update(context.Background()))
}
