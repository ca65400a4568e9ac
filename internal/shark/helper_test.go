package shark

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strings"
	"sync"
)

// fakeConn is a scriptable Connector. Each test wires a handler that routes
// on method and path and returns the value to encode as the response body.
type fakeConn struct {
	host    string
	handler func(method, path string, body any, params url.Values) (any, error)

	mu       sync.Mutex
	calls    []fakeCall
	download func(path, filename string) error
}

type fakeCall struct {
	Method string
	Path   string
	Body   any
	Params url.Values
}

func newFakeConn(handler func(method, path string, body any, params url.Values) (any, error)) *fakeConn {
	return &fakeConn{host: "shark.test", handler: handler}
}

func (f *fakeConn) Host() string { return f.host }

func (f *fakeConn) JSONRequest(_ context.Context, method, path string, body any, params url.Values, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Method: method, Path: path, Body: body, Params: params})
	f.mu.Unlock()

	resp, err := f.handler(method, path, body, params)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeConn) Download(_ context.Context, path string, _ url.Values, filename string, _ bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Method: "DOWNLOAD", Path: path})
	f.mu.Unlock()
	if f.download != nil {
		return f.download(path, filename)
	}
	return os.WriteFile(filename, []byte("pcap"), 0o644)
}

// countCalls returns how many recorded calls match method and a path
// substring.
func (f *fakeConn) countCalls(method, pathPart string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && strings.Contains(c.Path, pathPart) {
			n++
		}
	}
	return n
}

// jobData builds a minimal job snapshot.
func jobData(id, name, state string) SourceData {
	var d SourceData
	d.ID = id
	d.Config.Name = name
	d.Status.State = state
	return d
}

// testJob returns a Job bound to ns, avoiding a round-trip per test.
func testJob(ns *NetShark, id, name, state string) *Job {
	return &Job{baseSource{shark: ns, kind: KindJob, data: jobData(id, name, state)}}
}
