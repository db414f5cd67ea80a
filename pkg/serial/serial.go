// Package serial defines the pluggable codecs that turn application values
// into packet bytes and back.
//
// [JSON] is the default. [Null] disables serialization: bytes pass through
// untouched and subscribers receive the raw packet as []byte.
package serial

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSerialization wraps every encode or decode failure.
var ErrSerialization = errors.New("serial: serialization failed")

// Serializer converts application values to bytes and back.
type Serializer interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Names accepted by ByName.
const (
	NameJSON  = "json"
	NameCBOR  = "cbor"
	NameProto = "proto"
	NameNull  = "null"
)

// ByName resolves a serializer from configuration. The empty string, "none"
// and "null" select Null.
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameJSON:
		return JSON{}, nil
	case NameCBOR:
		return NewCBOR(), nil
	case NameProto, "protobuf":
		return Proto{}, nil
	case NameNull, "none", "":
		return Null{}, nil
	default:
		return nil, fmt.Errorf("serial: unknown serializer %q", name)
	}
}

func encodeErr(name string, err error) error {
	return fmt.Errorf("%w: %s encode: %v", ErrSerialization, name, err)
}

func decodeErr(name string, err error) error {
	return fmt.Errorf("%w: %s decode: %v", ErrSerialization, name, err)
}
