package session

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Codec turns records into bytes and back
type Codec interface {
	Encode(rec Record) ([]byte, error)
	Decode(data []byte) (Record, error)
}

// JSONCodec encodes records as JSON objects with sorted keys, so equal records
// always produce equal bytes.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode implements Codec.Encode
func (JSONCodec) Encode(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

// Decode implements Codec.Decode
func (JSONCodec) Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("payload is not an object: %.32q", data)
	}
	return rec, nil
}
