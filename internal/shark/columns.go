package shark

// Operation is the server-side aggregation applied to a Value column.
type Operation string

const (
	OperationNone    Operation = "none"
	OperationSum     Operation = "sum"
	OperationMax     Operation = "max"
	OperationMin     Operation = "min"
	OperationAvg     Operation = "avg"
	OperationTimeAvg Operation = "time_avg"
)

// ParseOperation maps a name to an Operation, defaulting to sum for unknown
// names the way report tables do.
func ParseOperation(name string) Operation {
	switch Operation(name) {
	case OperationNone, OperationSum, OperationMax, OperationMin, OperationAvg, OperationTimeAvg:
		return Operation(name)
	default:
		return OperationSum
	}
}

// Column is one entry of a view's column list. The slice order given to
// CreateView determines the tuple order of every sample, and sort indexes
// count Value columns only.
type Column interface {
	FieldName() string
	IsKey() bool
	wire() wireColumn
}

type wireColumn struct {
	Field       string `json:"field"`
	Operation   string `json:"operation,omitempty"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default_value,omitempty"`
}

// Key is a grouping dimension.
type Key struct {
	Field       string
	Description string
	Default     string
}

func (k Key) FieldName() string { return k.Field }
func (k Key) IsKey() bool       { return true }

func (k Key) wire() wireColumn {
	return wireColumn{Field: k.Field, Description: k.Description, Default: k.Default}
}

// Value is an aggregated measure.
type Value struct {
	Field       string
	Operation   Operation
	Description string
	Default     string
}

func (v Value) FieldName() string { return v.Field }
func (v Value) IsKey() bool       { return false }

func (v Value) wire() wireColumn {
	op := v.Operation
	if op == "" {
		op = OperationNone
	}
	return wireColumn{Field: v.Field, Operation: string(op), Description: v.Description, Default: v.Default}
}

func wireColumns(cols []Column) []wireColumn {
	out := make([]wireColumn, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.wire())
	}
	return out
}
