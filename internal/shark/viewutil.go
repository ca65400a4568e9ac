package shark

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// sampleTimeFormat is how sample timestamps render in CSV and plain output.
const sampleTimeFormat = time.RFC3339

// WriteCSV renders legend plus samples as CSV, one line per value row with
// the sample time in the first column.
func WriteCSV(w io.Writer, legend []LegendField, it *SampleIterator) error {
	cw := csv.NewWriter(w)

	header := []string{"time"}
	for _, f := range legend {
		header = append(header, f.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for it.Next() {
		s := it.Sample()
		for _, vals := range s.Vals {
			record := []string{formatSampleTime(s.T)}
			for _, v := range vals {
				record = append(record, fmt.Sprint(v))
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// PrintData renders legend plus samples as tab-separated text.
func PrintData(w io.Writer, legend []LegendField, it *SampleIterator) error {
	for _, f := range legend {
		fmt.Fprintf(w, "%s\t", f.Name)
	}
	fmt.Fprintln(w)

	for it.Next() {
		s := it.Sample()
		for _, vals := range s.Vals {
			fmt.Fprintf(w, "%s", formatSampleTime(s.T))
			for _, v := range vals {
				fmt.Fprintf(w, "\t%v", v)
			}
			fmt.Fprintln(w)
		}
	}
	return it.Err()
}

func formatSampleTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(sampleTimeFormat)
}
