package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark-go/pkg/series"
)

func TestDecodeJSONItems(t *testing.T) {
	data := []byte(`{
		"data": {
			"items": [
				{"name": "pump42", "datapoints": [
					{"timestamp": 1522188000000, "value": 1.5},
					{"timestamp": 1522188030000, "value": 2.5}
				]},
				{"name": "valve7", "datapoints": [
					{"timestamp": 1522188000000, "value": "open"}
				]}
			]
		}
	}`)

	items, err := DecodeJSONItems(data)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "pump42", items[0].Name)
	require.Equal(t, series.Page{
		{Timestamp: 1522188000000, Value: series.Float(1.5)},
		{Timestamp: 1522188030000, Value: series.Float(2.5)},
	}, items[0].Datapoints)

	require.Equal(t, "valve7", items[1].Name)
	require.Equal(t, series.Str("open"), items[1].Datapoints[0].Value)
}

func TestDecodeJSONPage(t *testing.T) {
	t.Run("single item", func(t *testing.T) {
		data := []byte(`{"data": {"items": [{"name": "a", "datapoints": [{"timestamp": 1, "value": 2}]}]}}`)
		page, err := DecodeJSONPage(data)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, int64(1), page[0].Timestamp)
	})

	t.Run("no items", func(t *testing.T) {
		_, err := DecodeJSONPage([]byte(`{"data": {"items": []}}`))
		require.Error(t, err)
	})

	t.Run("several items", func(t *testing.T) {
		_, err := DecodeJSONPage([]byte(`{"data": {"items": [{"name": "a"}, {"name": "b"}]}}`))
		require.Error(t, err)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := DecodeJSONPage([]byte(`{"data": `))
		require.Error(t, err)
	})
}

func TestEncodeJSONItemsRoundTrip(t *testing.T) {
	items := []Item{
		{Name: "pump42", Datapoints: series.Page{
			{Timestamp: 1000, Value: series.Float(0.5)},
		}},
		{Name: "valve7", Datapoints: series.Page{
			{Timestamp: 1000, Value: series.Str("closed")},
		}},
	}

	data, err := EncodeJSONItems(items)
	require.NoError(t, err)

	got, err := DecodeJSONItems(data)
	require.NoError(t, err)
	require.Equal(t, items, got)
}

func TestEncodeJSONItemsEmpty(t *testing.T) {
	data, err := EncodeJSONItems(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"data": {"items": []}}`, string(data))
}
