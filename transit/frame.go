// Package transit implements the node-to-node request/response and
// publish protocol: frame encode/decode, the pending-request correlation
// table, heartbeat, and discovery, on top of an abstract
// transport.Transport.
package transit

import "github.com/matgreaves/brokerd/brokererr"

// Kind is one of the seven frame kinds carried over the transport. The
// payload fields actually populated depend on Kind; this mirrors a
// flat-struct-with-optional-fields approach to a single wire event type
// rather than a Go union/interface per kind.
type Kind string

const (
	KindDiscover   Kind = "DISCOVER"
	KindInfo       Kind = "INFO"
	KindHeartbeat  Kind = "HEARTBEAT"
	KindDisconnect Kind = "DISCONNECT"
	KindRequest    Kind = "REQUEST"
	KindResponse   Kind = "RESPONSE"
	KindEvent      Kind = "EVENT"
)

// ProtocolVersion is the wire version stamped on every frame.
const ProtocolVersion = "4"

// Frame is the envelope exchanged between nodes.
type Frame struct {
	Ver    string `json:"ver" msgpack:"ver"`
	Sender string `json:"sender" msgpack:"sender"`
	Kind   Kind   `json:"kind" msgpack:"kind"`

	// INFO
	Services []string `json:"services,omitempty" msgpack:"services,omitempty"`
	Actions  []string `json:"actions,omitempty" msgpack:"actions,omitempty"`
	IPList   []string `json:"ipList,omitempty" msgpack:"ipList,omitempty"`

	// HEARTBEAT
	CPU    float64 `json:"cpu,omitempty" msgpack:"cpu,omitempty"`
	Uptime float64 `json:"uptime,omitempty" msgpack:"uptime,omitempty"`

	// REQUEST
	ID        string         `json:"id,omitempty" msgpack:"id,omitempty"`
	Action    string         `json:"action,omitempty" msgpack:"action,omitempty"`
	Params    any            `json:"params,omitempty" msgpack:"params,omitempty"`
	Meta      map[string]any `json:"meta,omitempty" msgpack:"meta,omitempty"`
	Timeout   int64          `json:"timeout,omitempty" msgpack:"timeout,omitempty"` // milliseconds
	Level     int            `json:"level,omitempty" msgpack:"level,omitempty"`
	ParentID  string         `json:"parentID,omitempty" msgpack:"parentID,omitempty"`
	RequestID string         `json:"requestID,omitempty" msgpack:"requestID,omitempty"`
	Metrics   bool           `json:"metrics,omitempty" msgpack:"metrics,omitempty"`

	// RESPONSE
	Success bool             `json:"success,omitempty" msgpack:"success,omitempty"`
	Data    any              `json:"data,omitempty" msgpack:"data,omitempty"`
	Error   *brokererr.Error `json:"error,omitempty" msgpack:"error,omitempty"`

	// EVENT
	Name string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// Topic names. Each transport instance subscribes to its own node-scoped
// topics plus the cluster-wide broadcast topics.
const (
	topicReqPrefix   = "MOL.REQ."
	topicResPrefix   = "MOL.RES."
	topicInfoPrefix  = "MOL.INFO."
	topicHeartbeat   = "MOL.HEARTBEAT"
	topicDiscover    = "MOL.DISCOVER"
	topicEvent       = "MOL.EVENT"
	topicDisconnect  = "MOL.DISCONNECT"
)

func reqTopic(nodeID string) string  { return topicReqPrefix + nodeID }
func resTopic(nodeID string) string  { return topicResPrefix + nodeID }
func infoTopic(nodeID string) string { return topicInfoPrefix + nodeID }
