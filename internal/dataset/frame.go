package dataset

import (
	"fmt"
	"math"
	"strconv"
)

// Frame is a column-major table. Columns are either numeric (float64,
// missing values as NaN) or string (missing values as ""), decided by
// the first non-null value seen in the column.
type Frame struct {
	cols    []string
	index   map[string]int
	floats  map[string][]float64
	strings map[string][]string
	n       int
}

func newFrame(cols []string) *Frame {
	f := &Frame{
		cols:    append([]string(nil), cols...),
		index:   make(map[string]int, len(cols)),
		floats:  make(map[string][]float64),
		strings: make(map[string][]string),
	}
	for i, c := range cols {
		f.index[c] = i
	}
	return f
}

// appendRow adds one database row of raw driver values.
func (f *Frame) appendRow(values []any) error {
	if len(values) != len(f.cols) {
		return fmt.Errorf("row has %d values, want %d", len(values), len(f.cols))
	}
	for i, col := range f.cols {
		v := values[i]
		if fv, ok := asFloat(v); ok {
			if _, isStr := f.strings[col]; isStr {
				f.strings[col] = append(f.strings[col], fmt.Sprintf("%v", v))
				continue
			}
			f.ensureFloat(col)
			f.floats[col] = append(f.floats[col], fv)
			continue
		}
		if v == nil {
			if _, isFloat := f.floats[col]; isFloat {
				f.floats[col] = append(f.floats[col], math.NaN())
				continue
			}
			if _, isStr := f.strings[col]; isStr {
				f.strings[col] = append(f.strings[col], "")
			}
			// Type still unknown: defer the decision. ensureFloat and
			// ensureString backfill the rows seen so far once the first
			// non-null value arrives.
			continue
		}
		sv := toString(v)
		if _, isFloat := f.floats[col]; isFloat {
			parsed, err := strconv.ParseFloat(sv, 64)
			if err != nil {
				return fmt.Errorf("column %s: mixed numeric and string values (%q)", col, sv)
			}
			f.floats[col] = append(f.floats[col], parsed)
			continue
		}
		f.ensureString(col)
		f.strings[col] = append(f.strings[col], sv)
	}
	f.n++
	return nil
}

func (f *Frame) ensureFloat(col string) {
	if _, ok := f.floats[col]; ok {
		return
	}
	// Backfill rows seen before the type was known.
	vals := make([]float64, 0, f.n)
	for i := 0; i < f.n; i++ {
		vals = append(vals, math.NaN())
	}
	f.floats[col] = vals
}

func (f *Frame) ensureString(col string) {
	if _, ok := f.strings[col]; ok {
		return
	}
	vals := make([]string, 0, f.n)
	for i := 0; i < f.n; i++ {
		vals = append(vals, "")
	}
	f.strings[col] = vals
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Columns returns the column names in table order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.cols...)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return f.n
}

// HasColumn reports whether the frame has the named column.
func (f *Frame) HasColumn(col string) bool {
	_, ok := f.index[col]
	return ok
}

// Floats returns a copy of a numeric column. An all-null column reads
// as numeric with every value missing.
func (f *Frame) Floats(col string) ([]float64, error) {
	vals, ok := f.floats[col]
	if !ok {
		if _, isStr := f.strings[col]; isStr {
			return nil, fmt.Errorf("column %s is not numeric", col)
		}
		if _, exists := f.index[col]; exists {
			out := make([]float64, f.n)
			for i := range out {
				out[i] = math.NaN()
			}
			return out, nil
		}
		return nil, fmt.Errorf("column %s not found", col)
	}
	return append([]float64(nil), vals...), nil
}

// Strings returns a copy of a string column. Numeric columns are
// formatted, which keeps integer-coded group identifiers usable as
// grouping keys.
func (f *Frame) Strings(col string) ([]string, error) {
	if vals, ok := f.strings[col]; ok {
		return append([]string(nil), vals...), nil
	}
	if vals, ok := f.floats[col]; ok {
		out := make([]string, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				out[i] = ""
				continue
			}
			out[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return out, nil
	}
	if _, exists := f.index[col]; exists {
		return make([]string, f.n), nil
	}
	return nil, fmt.Errorf("column %s not found", col)
}

// Levels returns the distinct values of a column in first-seen order.
func (f *Frame) Levels(col string) ([]string, error) {
	vals, err := f.Strings(col)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(vals))
	var out []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// NumericColumns returns the numeric column names in table order,
// skipping any listed exceptions.
func (f *Frame) NumericColumns(except ...string) []string {
	skip := make(map[string]bool, len(except))
	for _, e := range except {
		skip[e] = true
	}
	var out []string
	for _, c := range f.cols {
		if skip[c] {
			continue
		}
		if _, ok := f.floats[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// RequireComplete fails if any listed column has a missing value.
// Grouping-key columns must be complete before they are used as
// random-effect levels.
func (f *Frame) RequireComplete(cols ...string) error {
	for _, col := range cols {
		if vals, ok := f.floats[col]; ok {
			for i, v := range vals {
				if math.IsNaN(v) {
					return fmt.Errorf("column %s has a missing value at row %d", col, i+1)
				}
			}
			continue
		}
		if vals, ok := f.strings[col]; ok {
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("column %s has a missing value at row %d", col, i+1)
				}
			}
			continue
		}
		if _, exists := f.index[col]; exists {
			if f.n > 0 {
				return fmt.Errorf("column %s has a missing value at row 1", col)
			}
			continue
		}
		return fmt.Errorf("column %s not found", col)
	}
	return nil
}
