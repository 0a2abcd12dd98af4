package serialize

import "github.com/vmihailenco/msgpack/v5"

// MsgPack is the binary alternative to JSON, for deployments that prefer
// a compact wire format over readability.
type MsgPack struct{}

func (MsgPack) Serialize(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgPack) Deserialize(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
