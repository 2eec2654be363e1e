package journal

import (
	"bytes"
	"encoding/gob"
)

// EncodeValue serializes an arbitrary routine value using encoding/gob.
// Callers must ensure values are gob-encodable; concrete types crossing a
// checkpoint must be registered with gob by the caller.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so DecodeValue can decode without knowing the
	// concrete type.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
