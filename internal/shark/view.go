package shark

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/netsharklabs/netshark-go/internal/transport"
)

// DefaultPollInterval is how often a synchronous view creation polls for
// progress. Polling faster serves no purpose and loads the appliance.
const DefaultPollInterval = 500 * time.Millisecond

// millisecond-resolution views refuse queries longer than this.
const maxMillisecondSpan = time.Second

// SortType orders sorted retrievals.
type SortType string

const (
	SortDescending SortType = "descending"
	SortAscending  SortType = "ascending"
)

// ViewOptions configures CreateView.
type ViewOptions struct {
	// SamplingMsec is the time bucket width in milliseconds. 0 means 1000.
	// A value of 1 (millisecond resolution) forbids a query span longer
	// than one second.
	SamplingMsec int
	// Title makes the view persistent: it survives the client session and
	// can be found again by title.
	Title string
	// Sync blocks until the view is ready. On a non-live source this runs
	// the progress poll loop; any failure closes the view before returning.
	Sync bool
	// PollInterval overrides DefaultPollInterval for the Sync poll loop.
	PollInterval time.Duration
}

// View is a server-side aggregation computed over a source. Views obtained
// from GetOpenViews carry no Source (the appliance does not report it).
type View struct {
	shark  *NetShark
	handle string
	title  string
	source Source

	mu      sync.Mutex
	outputs []*Output // nil until first loaded
	closed  bool
}

type viewRequest struct {
	Type        string     `json:"type"`
	InputSource string     `json:"input_source"`
	Config      viewConfig `json:"config"`
}

type viewConfig struct {
	Columns []wireColumn   `json:"columns"`
	Filters []WireFilter   `json:"filters,omitempty"`
	Outputs []outputConfig `json:"outputs"`
	Info    *viewInfo      `json:"info,omitempty"`
}

type outputConfig struct {
	SamplingInterval int `json:"sampling_interval"`
}

type viewInfo struct {
	Title string `json:"title"`
}

type viewDescriptor struct {
	Handle string `json:"handle"`
	Config struct {
		Info viewInfo `json:"info"`
	} `json:"config"`
}

// CreateView allocates a view over source with the given columns and
// filters. Filters combine with logical AND on the appliance. For a live
// source no TimeFilter may be attached; bound the time range at retrieval
// instead.
func (ns *NetShark) CreateView(ctx context.Context, source Source, columns []Column, filters []Filter, opts ViewOptions) (*View, error) {
	if len(columns) == 0 {
		return nil, validationf("view requires at least one column")
	}
	sampling := opts.SamplingMsec
	if sampling == 0 {
		sampling = 1000
	}
	if sampling < 1 {
		return nil, validationf("sampling interval %dms is not positive", sampling)
	}

	var timeFilter *TimeFilter
	for _, f := range filters {
		if tf, ok := f.(TimeFilter); ok {
			timeFilter = &tf
		}
	}
	if source.IsLive() && timeFilter != nil {
		return nil, validationf("live source %s cannot take a time filter at view creation; pass the bounds to GetData instead", SourcePath(source))
	}
	if sampling == 1 && timeFilter != nil {
		if span, ok := timeFilter.Duration(); ok && span > maxMillisecondSpan {
			return nil, validationf("millisecond sampling limits the query span to 1s, got %s", span)
		}
	}

	req := viewRequest{
		Type:        "view",
		InputSource: source.ID(),
		Config: viewConfig{
			Columns: wireColumns(columns),
			Filters: BindAll(filters, ns.version),
			Outputs: []outputConfig{{SamplingInterval: sampling}},
		},
	}
	if opts.Title != "" {
		req.Config.Info = &viewInfo{Title: opts.Title}
	}

	var resp struct {
		Handle string `json:"handle"`
	}
	if err := ns.conn.JSONRequest(ctx, http.MethodPost, ns.apiPath("/views"), req, nil, &resp); err != nil {
		return nil, fmt.Errorf("create view on %s: %w", SourcePath(source), err)
	}

	v := &View{shark: ns, handle: resp.Handle, title: opts.Title, source: source}
	ns.log.Debug().Str("handle", v.handle).Str("source", SourcePath(source)).
		Str("title", opts.Title).Bool("sync", opts.Sync).Msg("view created")

	if !opts.Sync {
		// Caller owns polling and cleanup from here.
		return v, nil
	}

	if err := v.finishSync(ctx, opts.PollInterval); err != nil {
		v.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return v, nil
}

// finishSync drives the view to Ready. A live view skips the poll loop since
// data accumulates continuously.
func (v *View) finishSync(ctx context.Context, interval time.Duration) error {
	if !v.source.IsLive() {
		if err := v.WaitReady(ctx, interval, nil); err != nil {
			return err
		}
		return nil
	}
	_, err := v.ensureOutputs(ctx)
	return err
}

// Handle is the appliance identifier for this view.
func (v *View) Handle() string { return v.handle }

// Title returns the persistent title, empty for ephemeral views.
func (v *View) Title() string { return v.title }

// Source returns the source the view was created over, or nil for a view
// attached by handle.
func (v *View) Source() Source { return v.source }

// GetProgress polls the computation progress, 0 to 100. Errors propagate
// immediately; there is no retry here.
func (v *View) GetProgress(ctx context.Context) (int, error) {
	var progress int
	err := v.shark.conn.JSONRequest(ctx, http.MethodGet, v.path()+"/progress", nil, nil, &progress)
	if err != nil {
		return 0, fmt.Errorf("poll view %s progress: %w", v.handle, err)
	}
	return progress, nil
}

// WaitReady polls progress at the given interval (DefaultPollInterval when
// zero) until it reaches 100, then finalizes the outputs. The caller bounds
// the wait through ctx; the appliance offers no push notification, so this
// is a sleep-then-recheck loop. onProgress, when non-nil, observes every
// polled value.
func (v *View) WaitReady(ctx context.Context, interval time.Duration, onProgress func(int)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		progress, err := v.GetProgress(ctx)
		if err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(progress)
		}
		if progress >= 100 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for view %s: %w", v.handle, ctx.Err())
		case <-time.After(interval):
		}
	}
	_, err := v.ensureOutputs(ctx)
	return err
}

// IsReady reports whether the outputs have been finalized.
func (v *View) IsReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.outputs != nil
}

type outputData struct {
	ID             string        `json:"id"`
	SampleInterval int64         `json:"sample_interval"`
	Legend         []LegendField `json:"legend"`
}

// ensureOutputs loads the output list once and caches it for the life of the
// view. This is the post-apply step: it must run after progress reaches 100
// and before any data retrieval.
func (v *View) ensureOutputs(ctx context.Context) ([]*Output, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, fmt.Errorf("view %s is closed", v.handle)
	}
	if v.outputs != nil {
		return v.outputs, nil
	}

	var datas []outputData
	if err := v.shark.conn.JSONRequest(ctx, http.MethodGet, v.path()+"/outputs", nil, nil, &datas); err != nil {
		return nil, fmt.Errorf("load outputs of view %s: %w", v.handle, err)
	}
	outputs := make([]*Output, 0, len(datas))
	for _, d := range datas {
		outputs = append(outputs, &Output{
			view:           v,
			id:             d.ID,
			sampleInterval: time.Duration(d.SampleInterval) * time.Millisecond,
			legend:         d.Legend,
		})
	}
	v.outputs = outputs
	return outputs, nil
}

// AllOutputs returns one Output per result stream of the view, loading them
// on first access.
func (v *View) AllOutputs(ctx context.Context) ([]*Output, error) {
	return v.ensureOutputs(ctx)
}

// GetOutput returns the output with the given id.
func (v *View) GetOutput(ctx context.Context, id string) (*Output, error) {
	outputs, err := v.ensureOutputs(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range outputs {
		if o.id == id {
			return o, nil
		}
	}
	return nil, &ResourceNotFoundError{Kind: "view output", ID: id}
}

// singleOutput enforces the single-output shorthand contract.
func (v *View) singleOutput(ctx context.Context) (*Output, error) {
	outputs, err := v.ensureOutputs(ctx)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, &AmbiguousOutputError{Handle: v.handle, Outputs: len(outputs)}
	}
	return outputs[0], nil
}

// GetIterData is shorthand for the view's only output. It fails with
// AmbiguousOutputError when the view has more than one output.
func (v *View) GetIterData(ctx context.Context, opts ReadOptions) (*SampleIterator, error) {
	o, err := v.singleOutput(ctx)
	if err != nil {
		return nil, err
	}
	return o.GetIterData(ctx, opts), nil
}

// GetData is shorthand for the view's only output, materialized.
func (v *View) GetData(ctx context.Context, opts ReadOptions) ([]Sample, error) {
	o, err := v.singleOutput(ctx)
	if err != nil {
		return nil, err
	}
	return o.GetData(ctx, opts)
}

// GetLegend is shorthand for the view's only output.
func (v *View) GetLegend(ctx context.Context) ([]LegendField, error) {
	o, err := v.singleOutput(ctx)
	if err != nil {
		return nil, err
	}
	return o.Legend(), nil
}

// Close releases the server-side view. Idempotent; a view already gone on
// the appliance is not an error.
func (v *View) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	err := v.shark.conn.JSONRequest(ctx, http.MethodDelete, v.path(), nil, nil, nil)
	if err != nil && !transport.IsNotFound(err) {
		return fmt.Errorf("close view %s: %w", v.handle, err)
	}
	v.shark.log.Debug().Str("handle", v.handle).Msg("view closed")
	return nil
}

func (v *View) path() string {
	return v.shark.apiPath("/views/" + v.handle)
}

// GetOpenViews lists all views currently open on the appliance.
func (ns *NetShark) GetOpenViews(ctx context.Context) ([]*View, error) {
	var descs []viewDescriptor
	if err := ns.conn.JSONRequest(ctx, http.MethodGet, ns.apiPath("/views"), nil, nil, &descs); err != nil {
		return nil, fmt.Errorf("list open views: %w", err)
	}
	views := make([]*View, 0, len(descs))
	for _, d := range descs {
		views = append(views, &View{shark: ns, handle: d.Handle, title: d.Config.Info.Title})
	}
	return views, nil
}

// GetOpenViewByHandle attaches to an existing view. Returns
// ResourceNotFoundError when the handle is stale.
func (ns *NetShark) GetOpenViewByHandle(ctx context.Context, handle string) (*View, error) {
	var desc viewDescriptor
	err := ns.conn.JSONRequest(ctx, http.MethodGet, ns.apiPath("/views/"+handle), nil, nil, &desc)
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, &ResourceNotFoundError{Kind: "view", ID: handle}
		}
		return nil, fmt.Errorf("get view %s: %w", handle, err)
	}
	return &View{shark: ns, handle: desc.Handle, title: desc.Config.Info.Title}, nil
}

// LegendField describes one column of an output's samples.
type LegendField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Sample is one time bucket of view data. T is nil for aggregated samples
// with no sample time. Vals is ordered per the view's column list.
type Sample struct {
	T    *time.Time
	Vals [][]any
}

// Output is one result stream of a view.
type Output struct {
	view           *View
	id             string
	sampleInterval time.Duration
	legend         []LegendField
}

// ID is the appliance identifier of this output.
func (o *Output) ID() string { return o.id }

// SampleInterval is the output's time bucket width.
func (o *Output) SampleInterval() time.Duration { return o.sampleInterval }

// Legend describes the sample value columns.
func (o *Output) Legend() []LegendField { return o.legend }

// ReadOptions controls a data retrieval.
type ReadOptions struct {
	// Start and End bound the retrieval. Mandatory for views over live
	// sources, which took no time filter at creation.
	Start time.Time
	End   time.Time
	// Delta buckets the range into sub-intervals of this width.
	Delta time.Duration
	// Aggregated collapses the whole range into one sample. Wins over
	// Delta when both are set.
	Aggregated bool
	// SortBy is a zero-based index into the view's Value columns. Nil means
	// server order.
	SortBy *int
	// SortType defaults to descending when SortBy is set.
	SortType SortType
	// FromEntry and ToEntry slice each time bucket to the entries in
	// [FromEntry, ToEntry], both inclusive, enabling top-N per interval.
	// Both zero means no slicing.
	FromEntry int
	ToEntry   int
}

func (opts ReadOptions) params() url.Values {
	p := url.Values{}
	if !opts.Start.IsZero() {
		p.Set("start_time", strconv.FormatInt(opts.Start.UnixNano(), 10))
	}
	if !opts.End.IsZero() {
		p.Set("end_time", strconv.FormatInt(opts.End.UnixNano(), 10))
	}
	if opts.Aggregated {
		p.Set("aggregated", "true")
	} else if opts.Delta > 0 {
		p.Set("delta", strconv.FormatInt(opts.Delta.Nanoseconds(), 10))
	}
	if opts.SortBy != nil {
		p.Set("sortby", strconv.Itoa(*opts.SortBy))
		st := opts.SortType
		if st == "" {
			st = SortDescending
		}
		p.Set("sorttype", string(st))
	}
	if opts.FromEntry != 0 || opts.ToEntry != 0 {
		p.Set("fromentry", strconv.Itoa(opts.FromEntry))
		p.Set("toentry", strconv.Itoa(opts.ToEntry))
	}
	return p
}

// SortByIndex is a convenience for ReadOptions.SortBy.
func SortByIndex(i int) *int { return &i }

type wireSample struct {
	T    *int64  `json:"t"`
	Vals [][]any `json:"vals"`
}

// GetIterData returns a lazy, finite, non-restartable sequence of samples.
// Each call builds a fresh iterator that re-issues the request; nothing is
// memoized.
func (o *Output) GetIterData(ctx context.Context, opts ReadOptions) *SampleIterator {
	return &SampleIterator{fetch: func() ([]Sample, error) {
		return o.fetch(ctx, opts)
	}}
}

// GetData is the eager materialization of GetIterData.
func (o *Output) GetData(ctx context.Context, opts ReadOptions) ([]Sample, error) {
	it := o.GetIterData(ctx, opts)
	var samples []Sample
	for it.Next() {
		samples = append(samples, it.Sample())
	}
	return samples, it.Err()
}

func (o *Output) fetch(ctx context.Context, opts ReadOptions) ([]Sample, error) {
	if src := o.view.source; src != nil && src.IsLive() {
		if opts.Start.IsZero() || opts.End.IsZero() {
			return nil, validationf("view %s reads from a live source; Start and End are required at retrieval time", o.view.handle)
		}
	}

	var wire []wireSample
	path := o.view.path() + "/outputs/" + o.id + "/data"
	if err := o.view.shark.conn.JSONRequest(ctx, http.MethodGet, path, nil, opts.params(), &wire); err != nil {
		return nil, fmt.Errorf("read output %s of view %s: %w", o.id, o.view.handle, err)
	}

	samples := make([]Sample, 0, len(wire))
	for _, w := range wire {
		s := Sample{Vals: w.Vals}
		if w.T != nil {
			t := time.Unix(0, *w.T).UTC()
			s.T = &t
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// SampleIterator walks one retrieval's samples. The underlying request is
// issued on the first Next call.
type SampleIterator struct {
	fetch   func() ([]Sample, error)
	samples []Sample
	idx     int
	started bool
	err     error
}

// Next advances the iterator. It returns false once the sequence is
// exhausted or an error occurred; check Err afterwards.
func (it *SampleIterator) Next() bool {
	if !it.started {
		it.started = true
		it.samples, it.err = it.fetch()
	}
	if it.err != nil || it.idx >= len(it.samples) {
		return false
	}
	it.idx++
	return true
}

// Sample returns the current sample. Only valid after a true Next.
func (it *SampleIterator) Sample() Sample {
	return it.samples[it.idx-1]
}

// Err returns the fetch error, if any.
func (it *SampleIterator) Err() error {
	return it.err
}
