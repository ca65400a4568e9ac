package shark

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsharklabs/netshark-go/internal/transport"
)

// viewServer scripts a minimal appliance for the view lifecycle: one view
// handle, a configurable progress sequence, one or more outputs and canned
// sample data.
type viewServer struct {
	progress     []int // consumed one per poll, last value repeats
	progressSeen int
	outputs      []outputData
	data         []wireSample
	deleted      int
}

func (s *viewServer) handler(method, path string, body any, params url.Values) (any, error) {
	switch {
	case method == http.MethodPost && path == "/api/shark/5.0/views":
		return map[string]string{"handle": "V1"}, nil
	case method == http.MethodGet && path == "/api/shark/5.0/views/V1/progress":
		i := s.progressSeen
		if i >= len(s.progress) {
			i = len(s.progress) - 1
		}
		s.progressSeen++
		return s.progress[i], nil
	case method == http.MethodGet && path == "/api/shark/5.0/views/V1/outputs":
		return s.outputs, nil
	case method == http.MethodDelete && path == "/api/shark/5.0/views/V1":
		s.deleted++
		return nil, nil
	default:
		for _, o := range s.outputs {
			if method == http.MethodGet && path == "/api/shark/5.0/views/V1/outputs/"+o.ID+"/data" {
				return s.data, nil
			}
		}
		return nil, &transport.Error{StatusCode: http.StatusNotFound, Message: "no handler", Method: method, Path: path}
	}
}

func singleOutputServer() *viewServer {
	return &viewServer{
		progress: []int{100},
		outputs: []outputData{{
			ID:             "O1",
			SampleInterval: 1000,
			Legend:         []LegendField{{Name: "ip.src"}, {Name: "generic.bytes"}},
		}},
	}
}

func nsPtr(t time.Time) *int64 {
	n := t.UnixNano()
	return &n
}

func TestCreateViewSyncPollsUntilReady(t *testing.T) {
	srv := singleOutputServer()
	srv.progress = []int{0, 40, 100}
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job,
		[]Column{Key{Field: "ip.src"}, Value{Field: "generic.bytes", Operation: OperationSum}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, "V1", v.Handle())
	assert.True(t, v.IsReady())
	assert.Equal(t, 3, conn.countCalls(http.MethodGet, "/progress"))
	assert.Equal(t, 1, conn.countCalls(http.MethodGet, "/outputs"))
}

func TestCreateViewRequiresColumns(t *testing.T) {
	conn := newFakeConn(singleOutputServer().handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	_, err := ns.CreateView(context.Background(), job, nil, nil, ViewOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, conn.calls)
}

func TestCreateViewLiveSourceRejectsTimeFilter(t *testing.T) {
	conn := newFakeConn(singleOutputServer().handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "RUNNING")

	tf, err := NewTimeFilter(time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	_, err = ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		[]Filter{tf}, ViewOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, conn.calls, "validation must precede any request")
}

func TestCreateViewMillisecondSamplingBoundsSpan(t *testing.T) {
	conn := newFakeConn(singleOutputServer().handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tf, err := NewTimeFilter(start, start.Add(2*time.Second))
	require.NoError(t, err)

	_, err = ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		[]Filter{tf}, ViewOptions{SamplingMsec: 1})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, conn.calls)

	// A span within one second is allowed.
	tf, err = NewTimeFilter(start, start.Add(time.Second))
	require.NoError(t, err)
	_, err = ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		[]Filter{tf}, ViewOptions{SamplingMsec: 1, Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)
}

func TestCreateViewSyncFailureClosesView(t *testing.T) {
	srv := singleOutputServer()
	srv.progress = []int{0}
	conn := newFakeConn(func(method, path string, body any, params url.Values) (any, error) {
		if method == http.MethodGet && path == "/api/shark/5.0/views/V1/progress" {
			return nil, &transport.Error{StatusCode: http.StatusInternalServerError, Message: "boom"}
		}
		return srv.handler(method, path, body, params)
	})
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	_, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 1, srv.deleted, "failed sync creation must release the view")
}

func TestCreateViewLiveSyncSkipsPolling(t *testing.T) {
	srv := singleOutputServer()
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "RUNNING")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true})
	require.NoError(t, err)
	assert.True(t, v.IsReady())
	assert.Equal(t, 0, conn.countCalls(http.MethodGet, "/progress"))
}

func TestSingleOutputShorthand(t *testing.T) {
	srv := singleOutputServer()
	bucket := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.data = []wireSample{{T: nsPtr(bucket), Vals: [][]any{{"10.0.0.1", 1500.0}}}}
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}, Value{Field: "generic.bytes"}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	legend, err := v.GetLegend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ip.src", legend[0].Name)

	samples, err := v.GetData(context.Background(), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.NotNil(t, samples[0].T)
	assert.True(t, samples[0].T.Equal(bucket))
	assert.Equal(t, [][]any{{"10.0.0.1", 1500.0}}, samples[0].Vals)
}

func TestSingleOutputShorthandAmbiguous(t *testing.T) {
	srv := singleOutputServer()
	srv.outputs = append(srv.outputs, outputData{ID: "O2", SampleInterval: 1000})
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	_, err = v.GetData(context.Background(), ReadOptions{})
	var aerr *AmbiguousOutputError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 2, aerr.Outputs)

	// Explicit selection still works.
	o, err := v.GetOutput(context.Background(), "O2")
	require.NoError(t, err)
	assert.Equal(t, "O2", o.ID())
}

func TestLiveViewRequiresReadTimeBounds(t *testing.T) {
	srv := singleOutputServer()
	srv.data = []wireSample{}
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "RUNNING")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true})
	require.NoError(t, err)

	_, err = v.GetData(context.Background(), ReadOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = v.GetData(context.Background(), ReadOptions{
		Start: time.Now().Add(-time.Minute),
		End:   time.Now(),
	})
	require.NoError(t, err)
}

func TestSampleIteratorIsLazyAndFinite(t *testing.T) {
	srv := singleOutputServer()
	bucket := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.data = []wireSample{
		{T: nsPtr(bucket), Vals: [][]any{{"a"}}},
		{T: nsPtr(bucket.Add(time.Second)), Vals: [][]any{{"b"}}},
	}
	conn := newFakeConn(srv.handler)
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	it, err := v.GetIterData(context.Background(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, conn.countCalls(http.MethodGet, "/data"), "no request before first Next")

	var n int
	for it.Next() {
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, conn.countCalls(http.MethodGet, "/data"))

	// Exhausted iterators stay exhausted.
	assert.False(t, it.Next())

	// A second retrieval re-issues the request rather than replaying.
	it2, err := v.GetIterData(context.Background(), ReadOptions{})
	require.NoError(t, err)
	require.True(t, it2.Next())
	assert.Equal(t, 2, conn.countCalls(http.MethodGet, "/data"))
}

func TestReadOptionsParams(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	p := ReadOptions{Start: start, End: end, Delta: 2 * time.Second}.params()
	assert.Equal(t, strconv.FormatInt(start.UnixNano(), 10), p.Get("start_time"))
	assert.Equal(t, strconv.FormatInt(end.UnixNano(), 10), p.Get("end_time"))
	assert.Equal(t, "2000000000", p.Get("delta"))
	assert.Empty(t, p.Get("aggregated"))

	p = ReadOptions{Aggregated: true, Delta: time.Second}.params()
	assert.Equal(t, "true", p.Get("aggregated"))
	assert.Empty(t, p.Get("delta"), "aggregated wins over delta")

	p = ReadOptions{SortBy: SortByIndex(0)}.params()
	assert.Equal(t, "0", p.Get("sortby"))
	assert.Equal(t, "descending", p.Get("sorttype"))

	p = ReadOptions{SortBy: SortByIndex(1), SortType: SortAscending, FromEntry: 0, ToEntry: 4}.params()
	assert.Equal(t, "ascending", p.Get("sorttype"))
	assert.Equal(t, "0", p.Get("fromentry"))
	assert.Equal(t, "4", p.Get("toentry"))
}

// TestTopNPerBucket drives sorting and entry slicing through a fake that
// honors the retrieval parameters, the way a real appliance computes top
// talkers per interval.
func TestTopNPerBucket(t *testing.T) {
	srv := singleOutputServer()
	bucket := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	full := [][]any{
		{"10.0.0.1", 100.0},
		{"10.0.0.2", 500.0},
		{"10.0.0.3", 300.0},
		{"10.0.0.4", 400.0},
		{"10.0.0.5", 200.0},
	}
	conn := newFakeConn(func(method, path string, body any, params url.Values) (any, error) {
		if method == http.MethodGet && path == "/api/shark/5.0/views/V1/outputs/O1/data" {
			rows := append([][]any(nil), full...)
			if params.Get("sortby") == "0" {
				sort.Slice(rows, func(i, j int) bool {
					if params.Get("sorttype") == "ascending" {
						return rows[i][1].(float64) < rows[j][1].(float64)
					}
					return rows[i][1].(float64) > rows[j][1].(float64)
				})
			}
			if params.Get("toentry") != "" {
				from, _ := strconv.Atoi(params.Get("fromentry"))
				to, _ := strconv.Atoi(params.Get("toentry"))
				rows = rows[from : to+1]
			}
			return []wireSample{{T: nsPtr(bucket), Vals: rows}}, nil
		}
		return srv.handler(method, path, body, params)
	})
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job,
		[]Column{Key{Field: "ip.src"}, Value{Field: "generic.bytes", Operation: OperationSum}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	samples, err := v.GetData(context.Background(), ReadOptions{
		SortBy:    SortByIndex(0),
		FromEntry: 0,
		ToEntry:   2,
	})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Len(t, samples[0].Vals, 3)
	assert.Equal(t, "10.0.0.2", samples[0].Vals[0][0])
	assert.Equal(t, "10.0.0.4", samples[0].Vals[1][0])
	assert.Equal(t, "10.0.0.3", samples[0].Vals[2][0])
}

func TestCloseIdempotentAndTolerates404(t *testing.T) {
	srv := singleOutputServer()
	conn := newFakeConn(func(method, path string, body any, params url.Values) (any, error) {
		if method == http.MethodDelete {
			srv.deleted++
			if srv.deleted > 1 {
				t.Fatal("second Close must not hit the appliance")
			}
			return nil, &transport.Error{StatusCode: http.StatusNotFound, Message: "not found"}
		}
		return srv.handler(method, path, body, params)
	})
	ns := New(conn, Version5)
	job := testJob(ns, "j1", "voip", "STOPPED")

	v, err := ns.CreateView(context.Background(), job, []Column{Key{Field: "ip.src"}},
		nil, ViewOptions{Sync: true, PollInterval: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, v.Close(context.Background()))
	require.NoError(t, v.Close(context.Background()))
	assert.Equal(t, 1, srv.deleted)
}

func TestGetOpenViews(t *testing.T) {
	conn := newFakeConn(func(method, path string, body any, params url.Values) (any, error) {
		switch {
		case method == http.MethodGet && path == "/api/shark/5.0/views":
			return []map[string]any{
				{"handle": "V1", "config": map[string]any{"info": map[string]any{"title": "netshark-go/t1"}}},
				{"handle": "V2", "config": map[string]any{"info": map[string]any{"title": ""}}},
			}, nil
		case method == http.MethodGet && path == "/api/shark/5.0/views/V9":
			return nil, &transport.Error{StatusCode: http.StatusNotFound, Message: "not found"}
		}
		return nil, &transport.Error{StatusCode: http.StatusNotFound, Message: "no handler"}
	})
	ns := New(conn, Version5)

	views, err := ns.GetOpenViews(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "netshark-go/t1", views[0].Title())
	assert.Empty(t, views[1].Title())

	_, err = ns.GetOpenViewByHandle(context.Background(), "V9")
	var nf *ResourceNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "V9", nf.ID)
}
