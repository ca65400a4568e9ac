package shark

import (
	"context"
	"fmt"
	"time"
)

// OutputMixer combines several outputs of one view into a single sample
// stream, one combined row per time bucket. Outputs must share a sample
// interval and carry one row per bucket; anything else is structurally
// incompatible and the mixer refuses it rather than guessing an
// interleaving.
type OutputMixer struct {
	sources []mixerSource
}

type mixerSource struct {
	output *Output
	prefix string
}

// AddSource registers an output. prefix, when non-empty, prefixes the
// output's legend names in the combined legend.
func (m *OutputMixer) AddSource(o *Output, prefix string) error {
	if len(m.sources) > 0 && o.SampleInterval() != m.sources[0].output.SampleInterval() {
		return fmt.Errorf("output %s samples every %s, mixer is at %s: %w",
			o.ID(), o.SampleInterval(), m.sources[0].output.SampleInterval(), ErrIncompatibleOutputs)
	}
	m.sources = append(m.sources, mixerSource{output: o, prefix: prefix})
	return nil
}

// GetLegend returns the concatenated legend of all registered outputs.
func (m *OutputMixer) GetLegend() []LegendField {
	var legend []LegendField
	for _, s := range m.sources {
		for _, f := range s.output.Legend() {
			if s.prefix != "" {
				f.Name = s.prefix + f.Name
			}
			legend = append(legend, f)
		}
	}
	return legend
}

// GetIterData retrieves every source with the same options and zips the
// streams bucket by bucket.
func (m *OutputMixer) GetIterData(ctx context.Context, opts ReadOptions) *SampleIterator {
	return &SampleIterator{fetch: func() ([]Sample, error) {
		return m.fetch(ctx, opts)
	}}
}

// GetData is the eager materialization of GetIterData.
func (m *OutputMixer) GetData(ctx context.Context, opts ReadOptions) ([]Sample, error) {
	it := m.GetIterData(ctx, opts)
	var samples []Sample
	for it.Next() {
		samples = append(samples, it.Sample())
	}
	return samples, it.Err()
}

func (m *OutputMixer) fetch(ctx context.Context, opts ReadOptions) ([]Sample, error) {
	if len(m.sources) == 0 {
		return nil, nil
	}

	streams := make([][]Sample, len(m.sources))
	for i, s := range m.sources {
		data, err := s.output.GetData(ctx, opts)
		if err != nil {
			return nil, err
		}
		streams[i] = data
		if len(data) != len(streams[0]) {
			return nil, fmt.Errorf("output %s returned %d buckets, output %s returned %d: %w",
				m.sources[i].output.ID(), len(data), m.sources[0].output.ID(), len(streams[0]),
				ErrIncompatibleOutputs)
		}
	}

	mixed := make([]Sample, 0, len(streams[0]))
	for bucket := range streams[0] {
		combined := Sample{T: streams[0][bucket].T}
		var row []any
		for i, stream := range streams {
			s := stream[bucket]
			if !sameTime(s.T, combined.T) {
				return nil, fmt.Errorf("output %s bucket %d is misaligned in time: %w",
					m.sources[i].output.ID(), bucket, ErrIncompatibleOutputs)
			}
			if len(s.Vals) != 1 {
				return nil, fmt.Errorf("output %s has %d rows in bucket %d, mixing needs exactly one: %w",
					m.sources[i].output.ID(), len(s.Vals), bucket, ErrIncompatibleOutputs)
			}
			row = append(row, s.Vals[0]...)
		}
		combined.Vals = [][]any{row}
		mixed = append(mixed, combined)
	}
	return mixed, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
