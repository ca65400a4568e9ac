package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/internal/shark"
)

var (
	cvKeys     []string
	cvValues   []string
	cvFilters  []string
	cvBpf      string
	cvDisplay  string
	cvStart    string
	cvEnd      string
	cvSampling int
	cvTitle    string
	cvKeep     bool
)

var createviewCmd = &cobra.Command{
	Use:   "createview <source-path>",
	Short: "Create a view over a source and print its aggregated data",
	Long: `Creates a view over a source ("jobs/<name>", "clips/<id>" or
"fs/<path>") with the given key and value columns, waits for it showing
progress, prints the aggregated result and closes the view unless --keep.

Value columns take an optional aggregation suffix, e.g. generic.bytes:sum.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateview,
}

func init() {
	f := createviewCmd.Flags()
	f.StringArrayVarP(&cvKeys, "key", "k", nil, "key column field, repeatable")
	f.StringArrayVarP(&cvValues, "value", "v", nil, "value column field[:operation], repeatable")
	f.StringArrayVar(&cvFilters, "filter", nil, "native filter expression, repeatable")
	f.StringVar(&cvBpf, "bpf", "", "BPF filter expression")
	f.StringVar(&cvDisplay, "display-filter", "", "Wireshark display filter expression")
	f.StringVar(&cvStart, "start", "", "start time (RFC3339 or epoch seconds)")
	f.StringVar(&cvEnd, "end", "", "end time (RFC3339 or epoch seconds)")
	f.IntVar(&cvSampling, "sampling-msec", 1000, "sampling interval in milliseconds")
	f.StringVar(&cvTitle, "title", "", "persistent view title")
	f.BoolVar(&cvKeep, "keep", false, "leave the view open on the appliance")
}

func runCreateview(cmd *cobra.Command, args []string) error {
	ns, err := newShark()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	source, err := ns.SourceByPath(ctx, args[0])
	if err != nil {
		return err
	}

	var columns []shark.Column
	for _, k := range cvKeys {
		columns = append(columns, shark.Key{Field: k})
	}
	for _, v := range cvValues {
		field, op, _ := strings.Cut(v, ":")
		value := shark.Value{Field: field, Operation: shark.OperationNone}
		if op != "" {
			value.Operation = shark.ParseOperation(op)
		}
		columns = append(columns, value)
	}

	var filters []shark.Filter
	for _, f := range cvFilters {
		filters = append(filters, shark.SharkFilter{Expr: f})
	}
	if cvBpf != "" {
		filters = append(filters, shark.BpfFilter{Expr: cvBpf})
	}
	if cvDisplay != "" {
		filters = append(filters, shark.DisplayFilter{Expr: cvDisplay})
	}

	start, err := parseTime(cvStart)
	if err != nil {
		return err
	}
	end, err := parseTime(cvEnd)
	if err != nil {
		return err
	}
	if !start.IsZero() || !end.IsZero() {
		tf, err := shark.NewTimeFilter(start, end)
		if err != nil {
			return err
		}
		filters = append(filters, tf)
	}

	// Async creation so progress can be shown; the happy path and every
	// failure path below close the view unless --keep.
	view, err := ns.CreateView(ctx, source, columns, filters, shark.ViewOptions{
		SamplingMsec: cvSampling,
		Title:        cvTitle,
		Sync:         false,
	})
	if err != nil {
		return err
	}
	closeView := func() {
		if !cvKeep {
			view.Close(ctx)
		}
	}

	if !source.IsLive() {
		err = view.WaitReady(ctx, 0, func(p int) {
			fmt.Fprintf(os.Stderr, "\rprocessing: %3d%%", p)
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			closeView()
			return err
		}
	}

	opts := shark.ReadOptions{Aggregated: true}
	if source.IsLive() {
		// Live views take their bounds at read time.
		if start.IsZero() || end.IsZero() {
			now := time.Now()
			start, end = now.Add(-time.Minute), now
		}
		opts.Start, opts.End = start, end
		opts.Aggregated = false
		opts.Delta = time.Second
	}

	legend, err := view.GetLegend(ctx)
	if err != nil {
		closeView()
		return err
	}
	it, err := view.GetIterData(ctx, opts)
	if err != nil {
		closeView()
		return err
	}
	err = shark.PrintData(os.Stdout, legend, it)
	closeView()
	if err != nil {
		return err
	}
	if cvKeep {
		fmt.Fprintf(os.Stderr, "view %s left open\n", view.Handle())
	}
	return nil
}
