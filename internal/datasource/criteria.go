// Package datasource adapts report-table definitions and job criteria to the
// appliance view protocol and returns flat tabular results to the job
// scheduler.
package datasource

import "time"

// Criteria is what the external job scheduler supplies for one report run.
type Criteria struct {
	// SourcePath names the packet source, e.g. "jobs/voip" or
	// "fs/admin/noon.cap".
	SourcePath string
	StartTime  time.Time
	EndTime    time.Time
	// Resolution is the sample bucket width. One second and one millisecond
	// map onto the appliance sampling intervals; anything else falls back
	// to one second.
	Resolution time.Duration
	// FilterExprs are native appliance filter expressions, combined with
	// logical AND.
	FilterExprs []string
	// BpfExpr is an optional BPF filter expression.
	BpfExpr string
	// Persistent asks for a titled view that is reused across report runs.
	// Mandatory for live sources.
	Persistent bool
}

// ColumnDef describes one report column.
type ColumnDef struct {
	// Name is the report-side column name.
	Name  string
	Label string
	// Extractor is the appliance field path, e.g. "ip.src".
	Extractor string
	// Operation aggregates a value column; empty means none.
	Operation string
	Default   string
	IsKey     bool
}

// Table is the report table driving a query. A key column named "time" with
// the sample_time extractor turns the result into a timeseries: sample
// timestamps are prepended to every row instead of creating an appliance
// column.
type Table struct {
	ID        int
	Namespace string
	Name      string
	Columns   []ColumnDef
	// SortColumn names the column to sort buckets by, empty for server
	// order.
	SortColumn string
	// Aggregated collapses the queried range into a single sample.
	Aggregated bool
	// Rows limits the number of samples retained, 0 for all.
	Rows int
}
