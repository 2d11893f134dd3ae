package apiconnect

import (
	"github.com/goccy/go-json"
)

// Codec encodes api messages as JSON. It is registered under the name "json", so
// Connect clients and handlers negotiate it for application/json requests.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
