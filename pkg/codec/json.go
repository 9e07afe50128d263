// Package codec decodes datapoints API responses into the series model. The
// API speaks two equivalent wire encodings: a JSON envelope used everywhere,
// and a binary protobuf format served for raw datapoints on request. Both
// decode to the same pages; callers choose by Accept header.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tidemark-io/tidemark-go/pkg/series"
)

// Item is one named series and its datapoints as carried by the standard
// response envelope.
type Item struct {
	Name       string      `json:"name"`
	Datapoints series.Page `json:"datapoints"`
}

// envelope is the {"data": {"items": [...]}} wrapper on every JSON response.
type envelope struct {
	Data struct {
		Items []Item `json:"items"`
	} `json:"data"`
}

// DecodeJSONItems parses the JSON response envelope into its named series,
// in response order.
func DecodeJSONItems(data []byte) ([]Item, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return env.Data.Items, nil
}

// DecodeJSONPage parses an envelope expected to carry exactly one series and
// returns its page.
func DecodeJSONPage(data []byte) (series.Page, error) {
	items, err := DecodeJSONItems(data)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("expected exactly one series in response, got %d", len(items))
	}
	return items[0].Datapoints, nil
}

// EncodeJSONItems renders series into the JSON response envelope.
func EncodeJSONItems(items []Item) ([]byte, error) {
	var env envelope
	env.Data.Items = items
	if env.Data.Items == nil {
		env.Data.Items = []Item{}
	}
	return json.Marshal(env)
}
