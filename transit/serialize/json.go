package serialize

import "encoding/json"

// JSON is the default Serializer, using encoding/json for every wire
// structure it produces.
type JSON struct{}

func (JSON) Serialize(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Deserialize(data []byte, v any) error { return json.Unmarshal(data, v) }
