package frame

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

func TestAppendRow(t *testing.T) {
	f := New([]string{"pump42|avg", "pump42|max"})

	require.NoError(t, f.AppendRow(1000, []float64{1.5, 2.0}))
	require.NoError(t, f.AppendRow(2000, []float64{1.6, 2.1}))
	require.Equal(t, 2, f.Len())
	require.Equal(t, int64(2000), f.LastTimestamp())

	err := f.AppendRow(3000, []float64{1.0})
	require.ErrorIs(t, err, timeutil.ErrInvalidArgument)
	require.Equal(t, 2, f.Len())
}

func TestAppendDropsDuplicateBoundaryRows(t *testing.T) {
	a := New([]string{"ts|avg"})
	require.NoError(t, a.AppendRow(1000, []float64{1}))
	require.NoError(t, a.AppendRow(2000, []float64{2}))

	b := New([]string{"ts|avg"})
	require.NoError(t, b.AppendRow(2000, []float64{2}))
	require.NoError(t, b.AppendRow(3000, []float64{3}))

	require.NoError(t, a.Append(b))
	require.Equal(t, []int64{1000, 2000, 3000}, a.Timestamps)
}

func TestAppendSchemaMismatch(t *testing.T) {
	a := New([]string{"x|avg"})
	b := New([]string{"y|avg"})
	require.ErrorIs(t, a.Append(b), timeutil.ErrInvalidArgument)

	c := New([]string{"x|avg", "x|max"})
	require.ErrorIs(t, a.Append(c), timeutil.ErrInvalidArgument)
}

func TestAppendIntoEmptyFrame(t *testing.T) {
	a := New([]string{"ts|avg"})
	b := New([]string{"ts|avg"})
	require.NoError(t, b.AppendRow(1000, []float64{1}))

	require.NoError(t, a.Append(b))
	require.Equal(t, 1, a.Len())
}

func TestFromPage(t *testing.T) {
	page := series.Page{
		{Timestamp: 1000, Value: series.Float(1.5)},
		{Timestamp: 2000, Value: series.Str("offline")},
		{Timestamp: 3000, Value: series.Float(2.5)},
	}

	f := FromPage("pump42", page)
	require.Equal(t, []string{"pump42"}, f.Columns)
	require.Equal(t, []int64{1000, 2000, 3000}, f.Timestamps)
	require.Equal(t, 1.5, f.Values[0][0])
	require.True(t, math.IsNaN(f.Values[1][0]))
	require.Equal(t, 2.5, f.Values[2][0])
}

func TestWriteReadCSVRoundTrip(t *testing.T) {
	f := New([]string{"pump42|avg", "pump42|max"})
	require.NoError(t, f.AppendRow(1000, []float64{1.5, 2.0}))
	require.NoError(t, f.AppendRow(2000, []float64{math.NaN(), 2.1}))

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, f.Columns, got.Columns)
	require.Equal(t, f.Timestamps, got.Timestamps)
	require.Equal(t, 1.5, got.Values[0][0])
	require.True(t, math.IsNaN(got.Values[1][0]))
	require.Equal(t, 2.1, got.Values[1][1])
}

func TestWriteCSVFormat(t *testing.T) {
	f := New([]string{"a|avg"})
	require.NoError(t, f.AppendRow(1522188000000, []float64{0.5}))

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	require.Equal(t, "timestamp,a|avg\n1522188000000,0.5\n", buf.String())
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		rows    int
		columns []string
	}{
		{
			name:    "well formed",
			in:      "timestamp,a|avg,b|max\n1000,1.5,2\n2000,,3\n",
			rows:    2,
			columns: []string{"a|avg", "b|max"},
		},
		{
			name:    "header only",
			in:      "timestamp,a|avg\n",
			rows:    0,
			columns: []string{"a|avg"},
		},
		{
			name:    "empty input",
			in:      "",
			rows:    0,
			columns: nil,
		},
		{
			name:    "missing timestamp column",
			in:      "time,a|avg\n1000,1\n",
			wantErr: true,
		},
		{
			name:    "bad timestamp cell",
			in:      "timestamp,a|avg\nnot-a-number,1\n",
			wantErr: true,
		},
		{
			name:    "bad value cell",
			in:      "timestamp,a|avg\n1000,oops\n",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadCSV(strings.NewReader(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.rows, got.Len())
			if tc.columns == nil {
				require.Empty(t, got.Columns)
			} else {
				require.Equal(t, tc.columns, got.Columns)
			}
		})
	}
}
