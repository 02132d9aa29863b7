package protocol

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by every call.
const CodecName = "cbor"

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
	encoding.RegisterCodec(Codec{})
}

// Codec implements encoding.Codec with deterministic CBOR.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
