package serial

import "fmt"

// Null passes bytes through. Encode accepts []byte and string; Decode returns
// a copy of the packet as []byte.
type Null struct{}

func (Null) Name() string { return NameNull }

func (Null) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case nil:
		return []byte{}, nil
	default:
		return nil, encodeErr(NameNull, fmt.Errorf("unsupported type %T, want []byte or string", v))
	}
}

func (Null) Decode(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
