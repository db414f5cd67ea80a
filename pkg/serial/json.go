package serial

import "encoding/json"

// JSON is the default structured text codec. Decoded objects are
// map[string]any, arrays []any and numbers float64.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

func (JSON) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, encodeErr(NameJSON, err)
	}
	return b, nil
}

func (JSON) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, decodeErr(NameJSON, err)
	}
	return v, nil
}
