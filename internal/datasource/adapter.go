package datasource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netsharklabs/netshark-go/internal/logger"
	"github.com/netsharklabs/netshark-go/internal/shark"
	"github.com/netsharklabs/netshark-go/internal/viewcache"
)

// Adapter drives the view protocol for report jobs against one appliance.
//
// All view creation, progress polling and data retrieval is serialized
// through the injected mutex: parallel report jobs against the same
// appliance would otherwise flood it with concurrent view work. Export
// create/download is deliberately not covered by the lock; exports are
// independent per-call resources and have always run unserialized.
type Adapter struct {
	shark        *shark.NetShark
	lock         *sync.Mutex
	cache        *viewcache.Resolver
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewAdapter binds an appliance handle to its admission-control lock. The
// lock must be shared by every Adapter talking to the same appliance. cache
// may be nil when persistent views are never requested.
func NewAdapter(ns *shark.NetShark, lock *sync.Mutex, cache *viewcache.Resolver) *Adapter {
	return &Adapter{
		shark:        ns,
		lock:         lock,
		cache:        cache,
		pollInterval: shark.DefaultPollInterval,
		log:          logger.L().With().Str("component", "datasource").Str("host", ns.Host()).Logger(),
	}
}

// Run executes one report query and returns ordered rows of scalar values.
// onProgress, when non-nil, observes view progress (0-100) for job-state
// tracking.
func (a *Adapter) Run(ctx context.Context, table Table, criteria Criteria, onProgress func(int)) ([][]any, error) {
	samplingMsec, err := samplingFor(criteria)
	if err != nil {
		return nil, err
	}

	columns, columnNames, timeseries, err := buildColumns(table)
	if err != nil {
		return nil, err
	}
	sortBy := sortIndex(table, columns)

	filters := buildFilters(criteria)

	source, err := a.shark.SourceByPath(ctx, criteria.SourcePath)
	if err != nil {
		return nil, err
	}
	live := source.IsLive()
	if live && !criteria.Persistent {
		return nil, &shark.ValidationError{Reason: fmt.Sprintf(
			"source %s is live; live views must be run persistent", criteria.SourcePath)}
	}

	var view *shark.View
	if criteria.Persistent {
		if a.cache == nil {
			return nil, &shark.ValidationError{Reason: "persistent view requested but no view cache is configured"}
		}
		title := a.viewTitle(table, criteria, columnNames)
		a.log.Debug().Str("title", title).Msg("resolving persistent view")
		view, err = a.cache.FindOrCreate(ctx, a.shark, title, func(ctx context.Context) (*shark.View, error) {
			return a.createAndWait(ctx, source, columns, filters, samplingMsec, title, live, criteria, onProgress)
		})
	} else {
		view, err = a.createAndWait(ctx, source, columns, filters, samplingMsec, "", live, criteria, onProgress)
	}
	if err != nil {
		return nil, err
	}

	opts := shark.ReadOptions{SortBy: sortBy}
	if table.Aggregated {
		opts.Aggregated = true
	} else {
		opts.Delta = criteria.Resolution
	}
	if live {
		// The time frame could not be bound at creation for a live source;
		// attach it at retrieval.
		opts.Start = criteria.StartTime
		opts.End = criteria.EndTime
	}

	a.lock.Lock()
	data, err := view.GetData(ctx, opts)
	if err == nil && !criteria.Persistent {
		err = view.Close(ctx)
	}
	a.lock.Unlock()
	if err != nil {
		return nil, err
	}

	if table.Rows > 0 && len(data) > table.Rows {
		data = data[:table.Rows]
	}

	rows := flatten(data, timeseries)
	a.log.Info().Int("rows", len(rows)).Str("source", criteria.SourcePath).Msg("report query complete")
	return rows, nil
}

// createAndWait creates a view (under the lock) and, for non-live sources,
// drives the progress poll loop, taking the lock per poll so other jobs
// interleave.
func (a *Adapter) createAndWait(ctx context.Context, source shark.Source, columns []shark.Column,
	filters []shark.Filter, samplingMsec int, title string, live bool,
	criteria Criteria, onProgress func(int)) (*shark.View, error) {

	if !live {
		tf, err := shark.NewTimeFilter(criteria.StartTime, criteria.EndTime)
		if err != nil {
			return nil, err
		}
		filters = append(filters, tf)
	}

	a.lock.Lock()
	view, err := a.shark.CreateView(ctx, source, columns, filters, shark.ViewOptions{
		SamplingMsec: samplingMsec,
		Title:        title,
		Sync:         false,
	})
	a.lock.Unlock()
	if err != nil {
		return nil, err
	}

	if live {
		return view, nil
	}

	for {
		a.lock.Lock()
		progress, err := view.GetProgress(ctx)
		a.lock.Unlock()
		if err != nil {
			view.Close(context.WithoutCancel(ctx))
			return nil, err
		}
		if onProgress != nil {
			onProgress(progress)
		}
		if progress >= 100 {
			return view, nil
		}
		select {
		case <-ctx.Done():
			view.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("wait for view on %s: %w", criteria.SourcePath, ctx.Err())
		case <-time.After(a.pollInterval):
		}
	}
}

// samplingFor maps the criteria resolution onto an appliance sampling
// interval. Millisecond resolution caps the query span at one second, and
// the guard runs before any request.
func samplingFor(criteria Criteria) (int, error) {
	switch criteria.Resolution {
	case time.Millisecond:
		if criteria.EndTime.Sub(criteria.StartTime) > time.Second {
			return 0, &shark.ValidationError{Reason: "cannot run a millisecond report with a duration longer than 1 second"}
		}
		return 1, nil
	case time.Second:
		return 1000, nil
	default:
		return 1000, nil
	}
}

func buildColumns(table Table) (columns []shark.Column, names []string, timeseries bool, err error) {
	for _, def := range table.Columns {
		if def.IsKey && def.Name == "time" && def.Extractor == "sample_time" {
			// No appliance column; the sample time itself keys the rows.
			timeseries = true
			names = append(names, def.Name)
			continue
		}
		names = append(names, def.Name)
		if def.IsKey {
			columns = append(columns, shark.Key{Field: def.Extractor, Description: def.Label, Default: def.Default})
			continue
		}
		op := shark.OperationNone
		if def.Operation != "" {
			op = shark.ParseOperation(def.Operation)
		}
		columns = append(columns, shark.Value{Field: def.Extractor, Operation: op, Description: def.Label, Default: def.Default})
	}
	if len(columns) == 0 {
		return nil, nil, false, &shark.ValidationError{Reason: fmt.Sprintf("table %s has no appliance columns", table.Name)}
	}
	return columns, names, timeseries, nil
}

// sortIndex resolves the table's sort column to a zero-based index into the
// view's Value columns, the only sortable targets.
func sortIndex(table Table, columns []shark.Column) *int {
	if table.SortColumn == "" {
		return nil
	}
	var extractor string
	for _, def := range table.Columns {
		if def.Name == table.SortColumn {
			extractor = def.Extractor
			break
		}
	}
	if extractor == "" {
		return nil
	}
	idx := 0
	for _, c := range columns {
		if c.IsKey() {
			continue
		}
		if c.FieldName() == extractor {
			return shark.SortByIndex(idx)
		}
		idx++
	}
	return nil
}

func buildFilters(criteria Criteria) []shark.Filter {
	var filters []shark.Filter
	if expr := combineExprs(criteria.FilterExprs); expr != "" {
		filters = append(filters, shark.SharkFilter{Expr: expr})
	}
	if criteria.BpfExpr != "" {
		filters = append(filters, shark.BpfFilter{Expr: criteria.BpfExpr})
	}
	return filters
}

// combineExprs joins filter expressions with logical AND, parenthesizing
// each one.
func combineExprs(exprs []string) string {
	var parts []string
	for _, e := range exprs {
		if e == "" {
			continue
		}
		parts = append(parts, "("+e+")")
	}
	return strings.Join(parts, "&")
}

// viewTitle hashes everything identifying the query except the time range,
// so different windows of the same logical query share one persistent view.
func (a *Adapter) viewTitle(table Table, criteria Criteria, columnNames []string) string {
	attrs := map[string]string{
		"source":     criteria.SourcePath,
		"filterexpr": combineExprs(criteria.FilterExprs),
		"bpfexpr":    criteria.BpfExpr,
		"resolution": criteria.Resolution.String(),
		"persistent": strconv.FormatBool(criteria.Persistent),
	}
	return viewcache.ViewTitle(table.ID, table.Namespace, table.Name, columnNames, attrs)
}

// flatten turns samples into the scheduler's row format. Timeseries rows get
// the sample time (epoch seconds, fractional) prepended.
func flatten(data []shark.Sample, timeseries bool) [][]any {
	var rows [][]any
	for _, s := range data {
		for _, vals := range s.Vals {
			if timeseries {
				if s.T == nil {
					continue
				}
				t := float64(s.T.UnixMicro()) / 1e6
				row := append([]any{t}, vals...)
				rows = append(rows, row)
				continue
			}
			rows = append(rows, vals)
		}
	}
	return rows
}
