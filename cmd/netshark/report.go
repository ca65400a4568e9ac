package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/internal/datasource"
	"github.com/netsharklabs/netshark-go/internal/viewcache"
)

var (
	rpKeys       []string
	rpValues     []string
	rpFilters    []string
	rpBpf        string
	rpStart      string
	rpEnd        string
	rpLast       time.Duration
	rpResolution time.Duration
	rpSort       string
	rpRows       int
	rpAggregated bool
	rpTimeseries bool
	rpPersistent bool
	rpCachePath  string
	rpName       string
)

var reportCmd = &cobra.Command{
	Use:   "report <source-path>",
	Short: "Run a report query and print its rows",
	Long: `Runs one report query against a source the way the job scheduler
does: builds the view, waits for it, retrieves sorted rows and prints them.

With --persistent the view is titled and cached in a local sqlite database,
so repeated runs of the same query reuse the open view instead of
recomputing it. Live sources require --persistent.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringArrayVarP(&rpKeys, "key", "k", nil, "key column field, repeatable")
	f.StringArrayVarP(&rpValues, "value", "v", nil, "value column field[:operation], repeatable")
	f.StringArrayVar(&rpFilters, "filter", nil, "native filter expression, repeatable")
	f.StringVar(&rpBpf, "bpf", "", "BPF filter expression")
	f.StringVar(&rpStart, "start", "", "start time (RFC3339 or epoch seconds)")
	f.StringVar(&rpEnd, "end", "", "end time (RFC3339 or epoch seconds)")
	f.DurationVar(&rpLast, "last", 0, "query the last duration instead of --start/--end")
	f.DurationVar(&rpResolution, "resolution", time.Second, "sample bucket width (1s or 1ms)")
	f.StringVar(&rpSort, "sort", "", "value column to sort buckets by")
	f.IntVar(&rpRows, "rows", 0, "limit the number of samples, 0 for all")
	f.BoolVar(&rpAggregated, "aggregated", false, "collapse the range into one sample")
	f.BoolVar(&rpTimeseries, "timeseries", false, "prepend the sample time to every row")
	f.BoolVar(&rpPersistent, "persistent", false, "reuse a titled view across runs")
	f.StringVar(&rpCachePath, "cache", "", "view cache database, overrides config")
	f.StringVar(&rpName, "name", "report", "query name, part of the persistent title")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ns, err := newShark()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	table := datasource.Table{
		Namespace:  "cli",
		Name:       rpName,
		SortColumn: rpSort,
		Aggregated: rpAggregated,
		Rows:       rpRows,
	}
	if rpTimeseries {
		table.Columns = append(table.Columns, datasource.ColumnDef{
			Name: "time", Extractor: "sample_time", IsKey: true,
		})
	}
	for _, k := range rpKeys {
		table.Columns = append(table.Columns, datasource.ColumnDef{Name: k, Extractor: k, IsKey: true})
	}
	for _, v := range rpValues {
		field, op, _ := strings.Cut(v, ":")
		table.Columns = append(table.Columns, datasource.ColumnDef{Name: field, Extractor: field, Operation: op})
	}

	start, err := parseTime(rpStart)
	if err != nil {
		return err
	}
	end, err := parseTime(rpEnd)
	if err != nil {
		return err
	}
	if rpLast > 0 {
		end = time.Now()
		start = end.Add(-rpLast)
	}

	criteria := datasource.Criteria{
		SourcePath:  args[0],
		StartTime:   start,
		EndTime:     end,
		Resolution:  rpResolution,
		FilterExprs: rpFilters,
		BpfExpr:     rpBpf,
		Persistent:  rpPersistent,
	}

	var cache *viewcache.Resolver
	if rpPersistent {
		path := rpCachePath
		if path == "" {
			path = cfg.Cache.Path
		}
		if path == "" {
			return fmt.Errorf("--persistent needs a cache database; pass --cache or set cache.path in the config file")
		}
		store, err := viewcache.NewSQLiteStore(path)
		if err != nil {
			return err
		}
		defer store.Close()
		cache = viewcache.NewResolver(store)
	}

	adapter := datasource.NewAdapter(ns, &sync.Mutex{}, cache)
	rows, err := adapter.Run(ctx, table, criteria, func(p int) {
		fmt.Fprintf(os.Stderr, "\rprocessing: %3d%%", p)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	for _, def := range table.Columns {
		fmt.Printf("%s\t", def.Name)
	}
	fmt.Println()
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				fmt.Print("\t")
			}
			fmt.Print(v)
		}
		fmt.Println()
	}
	return nil
}
