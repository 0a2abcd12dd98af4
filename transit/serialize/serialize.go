// Package serialize implements frame-body (de)serialization:
// serialize(obj) -> bytes, deserialize(bytes) -> obj, required to be
// round-trip stable for every frame kind.
package serialize

// Serializer is the injected (de)serializer for transit frame bodies.
// JSON and MsgPack are provided; Avro/Protobuf wire formats are not
// implemented here.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}
