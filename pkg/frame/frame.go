// Package frame holds the columnar result model of the dataframe endpoint:
// one timestamp column plus one value column per series-aggregate pair, with
// CSV as its wire representation.
package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// TimestampColumn is the name of the leading column of every frame.
const TimestampColumn = "timestamp"

// Frame is a columnar table of datapoints. All value columns share the
// timestamp column; missing cells are NaN. Rows are ordered by ascending
// timestamp.
type Frame struct {
	// Columns are the value column names, timestamp excluded. Frame columns
	// are conventionally named "<series>|<aggregate>".
	Columns []string
	// Timestamps holds the row timestamps in epoch milliseconds.
	Timestamps []int64
	// Values is row-major: Values[i][j] pairs Timestamps[i] with Columns[j].
	Values [][]float64
}

// New returns an empty frame with the given value columns.
func New(columns []string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Timestamps)
}

// LastTimestamp returns the timestamp of the final row. The frame must not
// be empty.
func (f *Frame) LastTimestamp() int64 {
	return f.Timestamps[len(f.Timestamps)-1]
}

// AppendRow adds one row. The value count must match the column count.
func (f *Frame) AppendRow(ts int64, values []float64) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("%w: row has %d values for %d columns", timeutil.ErrInvalidArgument, len(values), len(f.Columns))
	}
	f.Timestamps = append(f.Timestamps, ts)
	f.Values = append(f.Values, append([]float64(nil), values...))
	return nil
}

// Append concatenates other onto f. Both frames must share the same columns.
// Rows of other whose timestamp does not advance past the last row of f are
// dropped, so joining windowed fetches never repeats a boundary row.
func (f *Frame) Append(other *Frame) error {
	if len(other.Columns) != len(f.Columns) {
		return fmt.Errorf("%w: appending frame with %d columns to frame with %d", timeutil.ErrInvalidArgument, len(other.Columns), len(f.Columns))
	}
	for i, col := range f.Columns {
		if other.Columns[i] != col {
			return fmt.Errorf("%w: column %d is %q, want %q", timeutil.ErrInvalidArgument, i, other.Columns[i], col)
		}
	}

	for i, ts := range other.Timestamps {
		if f.Len() > 0 && ts <= f.LastTimestamp() {
			continue
		}
		f.Timestamps = append(f.Timestamps, ts)
		f.Values = append(f.Values, other.Values[i])
	}
	return nil
}

// FromPage converts one series' datapoints into a single-column frame.
// String values become NaN cells.
func FromPage(column string, page series.Page) *Frame {
	f := New([]string{column})
	for _, dp := range page {
		v := math.NaN()
		if !dp.Value.IsString() {
			v = dp.Value.Float64()
		}
		f.Timestamps = append(f.Timestamps, dp.Timestamp)
		f.Values = append(f.Values, []float64{v})
	}
	return f
}

// WriteCSV renders the frame in the dataframe endpoint's wire format: a
// header row of timestamp plus the value columns, NaN cells left empty.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(f.Columns)+1)
	header = append(header, TimestampColumn)
	header = append(header, f.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for i, ts := range f.Timestamps {
		record[0] = strconv.FormatInt(ts, 10)
		for j, v := range f.Values[i] {
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the dataframe endpoint's CSV wire format. The first header
// column must be the timestamp column; empty cells parse as NaN.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if header[0] != TimestampColumn {
		return nil, fmt.Errorf("%w: first csv column is %q, want %q", timeutil.ErrInvalidArgument, header[0], TimestampColumn)
	}

	f := New(header[1:])
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return f, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", f.Len(), err)
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q in csv row %d: %w", record[0], f.Len(), err)
		}
		values := make([]float64, len(record)-1)
		for j, cell := range record[1:] {
			if cell == "" {
				values[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("bad value %q in csv row %d: %w", cell, f.Len(), err)
			}
			values[j] = v
		}
		f.Timestamps = append(f.Timestamps, ts)
		f.Values = append(f.Values, values)
	}
}
