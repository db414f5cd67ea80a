package serial

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto encodes JSON-shaped values as a protobuf google.protobuf.Value.
// Values that structpb cannot represent directly (structs, typed slices) are
// first normalized through encoding/json.
type Proto struct{}

func (Proto) Name() string { return NameProto }

func (Proto) Encode(v any) ([]byte, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		norm, nerr := normalize(v)
		if nerr != nil {
			return nil, encodeErr(NameProto, err)
		}
		if pv, err = structpb.NewValue(norm); err != nil {
			return nil, encodeErr(NameProto, err)
		}
	}
	b, err := proto.Marshal(pv)
	if err != nil {
		return nil, encodeErr(NameProto, err)
	}
	return b, nil
}

func (Proto) Decode(data []byte) (any, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return nil, decodeErr(NameProto, err)
	}
	if pv.GetKind() == nil {
		return nil, decodeErr(NameProto, fmt.Errorf("value has no kind"))
	}
	return pv.AsInterface(), nil
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
