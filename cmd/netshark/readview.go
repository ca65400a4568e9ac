package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netsharklabs/netshark-go/internal/shark"
)

var (
	readviewList   bool
	readviewOutput string
	readviewFile   string
)

var readviewCmd = &cobra.Command{
	Use:   "readview [handle]",
	Short: "List open views, or read one view's data",
	Long: `With -l, lists the views currently open on the appliance and their
outputs. Given a view handle, retrieves its data and prints it, or writes CSV
with -f. A view with several outputs is merged when the outputs are
compatible; select one explicitly with -o otherwise.`,
	RunE: runReadview,
}

func init() {
	readviewCmd.Flags().BoolVarP(&readviewList, "list", "l", false, "list open views")
	readviewCmd.Flags().StringVarP(&readviewOutput, "output", "o", "", "read only this output id")
	readviewCmd.Flags().StringVarP(&readviewFile, "file", "f", "", "write CSV to this file instead of stdout")
}

func runReadview(cmd *cobra.Command, args []string) error {
	ns, err := newShark()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if readviewList {
		if len(args) != 0 {
			return fmt.Errorf("-l takes no arguments")
		}
		views, err := ns.GetOpenViews(ctx)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Println("there are no views")
			return nil
		}
		for _, v := range views {
			fmt.Println(v.Handle())
			outputs, err := v.AllOutputs(ctx)
			if err != nil {
				return err
			}
			for _, o := range outputs {
				fmt.Printf("  %s\n", o.ID())
			}
			if title := v.Title(); title != "" {
				fmt.Printf("  title: %s\n", title)
			}
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("expected exactly one view handle")
	}
	view, err := ns.GetOpenViewByHandle(ctx, args[0])
	if err != nil {
		return err
	}

	if readviewOutput != "" {
		o, err := view.GetOutput(ctx, readviewOutput)
		if err != nil {
			return err
		}
		return render(o.Legend(), o.GetIterData(ctx, shark.ReadOptions{}))
	}

	outputs, err := view.AllOutputs(ctx)
	if err != nil {
		return err
	}
	if len(outputs) == 1 {
		o := outputs[0]
		return render(o.Legend(), o.GetIterData(ctx, shark.ReadOptions{}))
	}

	// Try merging; fall back to one output at a time.
	var mixer shark.OutputMixer
	mixable := true
	for _, o := range outputs {
		if err := mixer.AddSource(o, o.ID()+"."); err != nil {
			mixable = false
			break
		}
	}
	if mixable {
		return render(mixer.GetLegend(), mixer.GetIterData(ctx, shark.ReadOptions{}))
	}
	for _, o := range outputs {
		fmt.Printf("Output %s\n", o.ID())
		if err := render(o.Legend(), o.GetIterData(ctx, shark.ReadOptions{})); err != nil {
			return err
		}
	}
	return nil
}

func render(legend []shark.LegendField, it *shark.SampleIterator) error {
	if readviewFile != "" {
		f, err := os.Create(readviewFile)
		if err != nil {
			return err
		}
		defer f.Close()
		return shark.WriteCSV(f, legend, it)
	}
	return shark.PrintData(os.Stdout, legend, it)
}
