package registry

import (
	"bytes"
	"encoding/json"
	"io"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func unmarshalJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
