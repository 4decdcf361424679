package persistence

import "encoding/json"

// EncodeValue serializes arbitrary values as JSON. Specifications and
// state values are JSON on the wire already, so the stored form matches
// what callers exchange.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeValue deserializes a JSON payload produced by EncodeValue.
// Empty payloads decode to the zero value.
func DecodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
