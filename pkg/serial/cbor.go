package serial

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var mapStringAnyType = reflect.TypeOf(map[string]any(nil))

// CBOR is a compact binary codec. Maps decode as map[string]any so values
// compare equal to their JSON-decoded counterparts.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR returns a CBOR codec using canonical encoding.
func NewCBOR() *CBOR {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: mapStringAnyType,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBOR{enc: enc, dec: dec}
}

func (c *CBOR) Name() string { return NameCBOR }

func (c *CBOR) Encode(v any) ([]byte, error) {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, encodeErr(NameCBOR, err)
	}
	return b, nil
}

func (c *CBOR) Decode(data []byte) (any, error) {
	var v any
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return nil, decodeErr(NameCBOR, err)
	}
	return v, nil
}
