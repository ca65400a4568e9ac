package shark

import (
	"fmt"
	"time"
)

// ProtocolVersion identifies the appliance REST protocol generation. Filters
// are encoded per version through an explicit table; versions missing from
// the table fall back to the generic encoding.
type ProtocolVersion int

const (
	// VersionGeneric is the fallback wire encoding.
	VersionGeneric ProtocolVersion = iota
	Version4
	Version5
)

func (v ProtocolVersion) String() string {
	switch v {
	case Version4:
		return "4.0"
	case Version5:
		return "5.0"
	default:
		return "generic"
	}
}

// FilterType tags the filter variants.
type FilterType string

const (
	FilterTime    FilterType = "TIME"
	FilterShark   FilterType = "SHARK"
	FilterBpf     FilterType = "BPF"
	FilterDisplay FilterType = "WIRESHARK"
)

// WireFilter is the serialized form sent to the appliance.
type WireFilter struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Filter narrows the traffic fed to a view or an export. Implementations are
// immutable value types.
type Filter interface {
	FilterType() FilterType
	// wireValue is the generic encoding of the filter value.
	wireValue() string
}

// TimeFilter bounds a query to [Start, End]. A zero Start or End is the
// unbounded sentinel, meaning "entire capture" on that side.
type TimeFilter struct {
	Start time.Time
	End   time.Time
}

// NewTimeFilter validates that Start precedes End when both are set.
func NewTimeFilter(start, end time.Time) (TimeFilter, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return TimeFilter{}, validationf("time filter start %s is after end %s", start, end)
	}
	return TimeFilter{Start: start, End: end}, nil
}

func (f TimeFilter) FilterType() FilterType { return FilterTime }

func (f TimeFilter) wireValue() string {
	return fmt.Sprintf("%d, %d", nanos(f.Start), nanos(f.End))
}

// Duration returns End-Start and whether both bounds are set.
func (f TimeFilter) Duration() (time.Duration, bool) {
	if f.Start.IsZero() || f.End.IsZero() {
		return 0, false
	}
	return f.End.Sub(f.Start), true
}

// SharkFilter is a native appliance filter expression.
type SharkFilter struct {
	Expr string
}

func (f SharkFilter) FilterType() FilterType { return FilterShark }
func (f SharkFilter) wireValue() string      { return f.Expr }

// BpfFilter is a BPF capture filter expression.
type BpfFilter struct {
	Expr string
}

func (f BpfFilter) FilterType() FilterType { return FilterBpf }
func (f BpfFilter) wireValue() string      { return f.Expr }

// DisplayFilter is a Wireshark display filter expression.
type DisplayFilter struct {
	Expr string
}

func (f DisplayFilter) FilterType() FilterType { return FilterDisplay }
func (f DisplayFilter) wireValue() string      { return f.Expr }

type filterEncoder func(Filter) WireFilter

func genericEncode(f Filter) WireFilter {
	return WireFilter{Type: string(f.FilterType()), Value: f.wireValue()}
}

// encoders is the per-version strategy table. Version 4 and 5 currently share
// the generic encodings; the table exists so a protocol revision changes one
// entry instead of the filter types.
var encoders = map[ProtocolVersion]map[FilterType]filterEncoder{
	Version4: {},
	Version5: {},
}

// Bind serializes f for the given protocol version.
func Bind(f Filter, v ProtocolVersion) WireFilter {
	if perType, ok := encoders[v]; ok {
		if enc, ok := perType[f.FilterType()]; ok {
			return enc(f)
		}
	}
	return genericEncode(f)
}

// BindAll serializes a filter list for the given protocol version.
func BindAll(filters []Filter, v ProtocolVersion) []WireFilter {
	if len(filters) == 0 {
		return nil
	}
	out := make([]WireFilter, 0, len(filters))
	for _, f := range filters {
		out = append(out, Bind(f, v))
	}
	return out
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
