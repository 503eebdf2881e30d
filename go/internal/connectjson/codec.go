// Package connectjson lets connect handlers and clients exchange plain Go
// structs as JSON, without generated protobuf messages.
package connectjson

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// Codec is a connect.Codec registered under the "json" name
type Codec struct{}

var _ connect.Codec = Codec{}

// Name implements connect.Codec
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec
func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("connectjson: marshal %T: %w", msg, err)
	}
	return b, nil
}

// Unmarshal implements connect.Codec
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("connectjson: unmarshal %T: %w", msg, err)
	}
	return nil
}

// HandlerOptions are the options every JSON service handler is built with
func HandlerOptions(extra ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, extra...)
}

// ClientOptions are the options every JSON client is built with
func ClientOptions(extra ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, extra...)
}
