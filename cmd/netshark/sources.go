package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/internal/shark"
)

var sourcesIncludeFiles bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the appliance's capture jobs, trace clips and files",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesIncludeFiles, "files", true, "include uploaded trace files")
}

func runSources(cmd *cobra.Command, _ []string) error {
	ns, err := newShark()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	jobs, err := ns.GetCaptureJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		live := ""
		if j.IsLive() {
			live = " (live)"
		}
		fmt.Printf("%-40s job%s\n", shark.SourcePath(j), live)
	}

	clips, err := ns.GetClips(ctx)
	if err != nil {
		return err
	}
	for _, c := range clips {
		fmt.Printf("%-40s clip: %s\n", shark.SourcePath(c), c.Data().Config.Description)
	}

	if sourcesIncludeFiles {
		files, err := ns.GetFiles(ctx)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("%-40s file\n", shark.SourcePath(f))
		}
	}
	return nil
}
