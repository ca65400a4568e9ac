package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/internal/pcapinfo"
	"github.com/netsharklabs/netshark-go/internal/shark"
)

var (
	dlOut       string
	dlStart     string
	dlEnd       string
	dlLast      time.Duration
	dlFilters   []string
	dlWait      bool
	dlWaitFor   time.Duration
	dlOverwrite bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <source-path>",
	Short: "Export a time range of packets from a source to a local pcap",
	Long: `Creates a packet export on the appliance for the given source and
time range, downloads it as a pcap file and deletes the export. The export is
deleted on every exit path, including failures.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringVarP(&dlOut, "out", "o", "", "local pcap filename (default <source>_export.pcap)")
	f.StringVar(&dlStart, "start", "", "start time (RFC3339 or epoch seconds)")
	f.StringVar(&dlEnd, "end", "", "end time (RFC3339 or epoch seconds)")
	f.DurationVar(&dlLast, "last", 0, "export the last duration, e.g. 15m (alternative to --start/--end)")
	f.StringArrayVar(&dlFilters, "filter", nil, "native filter expression, repeatable")
	f.BoolVar(&dlWait, "wait", false, "retry when the source has no data yet")
	f.DurationVar(&dlWaitFor, "wait-duration", shark.DefaultExportWait, "sleep between retries with --wait")
	f.BoolVar(&dlOverwrite, "overwrite", false, "replace the local file if it exists")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ns, err := newShark()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	source, err := ns.SourceByPath(ctx, args[0])
	if err != nil {
		return err
	}

	var start, end time.Time
	switch {
	case dlLast > 0:
		end = time.Now()
		start = end.Add(-dlLast)
	case dlStart != "" && dlEnd != "":
		if start, err = parseTime(dlStart); err != nil {
			return err
		}
		if end, err = parseTime(dlEnd); err != nil {
			return err
		}
	default:
		return fmt.Errorf("select a time range with --last or --start/--end")
	}
	tf, err := shark.NewTimeFilter(start, end)
	if err != nil {
		return err
	}

	var filters []shark.Filter
	for _, f := range dlFilters {
		filters = append(filters, shark.SharkFilter{Expr: f})
	}

	filename := dlOut
	if filename == "" {
		filename = strings.ReplaceAll(args[0], "/", "_") + "_export.pcap"
	}

	export, err := ns.CreateExport(ctx, source, tf, shark.ExportOptions{
		Filters:      filters,
		WaitForData:  dlWait,
		WaitDuration: dlWaitFor,
	})
	if err != nil {
		return err
	}
	// Best-effort cleanup on every exit path; a successful download already
	// removed the export server-side and Delete tolerates that.
	defer export.Delete(ctx)

	fmt.Printf("export %s created\n", export.ID())

	ok, err := export.Download(ctx, filename, dlOverwrite)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("export %s is not ready for download", export.ID())
	}

	summary, err := pcapinfo.Summarize(filename)
	if err != nil {
		fmt.Printf("downloaded %s (unreadable summary: %v)\n", filename, err)
		return nil
	}
	fmt.Printf("downloaded %s: %d packets, %d bytes, %s\n",
		filename, summary.Packets, summary.Bytes, summary.Duration())
	return nil
}
