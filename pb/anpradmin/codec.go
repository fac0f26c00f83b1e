package anpradmin

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a minimal grpc/encoding.Codec so the hand-written message
// structs in this package (there is no protoc step in this build) can
// travel over a real grpc.Server/grpc.ClientConn without a generated
// .pb.go file. Registered under the "json" content-subtype; clients select
// it via grpc.CallContentSubtype (see DialOption), and the server picks the
// registered codec from each request's content-subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
