package gateway

import "encoding/json"

// Opcode identifies the kind of payload carried by a [Packet]'s D field.
type Opcode int

const (
	// OpcodeHeartbeat is sent by the client (and occasionally requested by
	// the server) to keep the connection alive. D carries the last sequence
	// number observed, or null if none has been received yet.
	OpcodeHeartbeat Opcode = 1
	// OpcodeIdentify is sent once, immediately after the connection opens,
	// to authenticate the client and describe its capabilities.
	OpcodeIdentify Opcode = 2
	// OpcodeUpdateStatus asks the server to change the client's presence.
	OpcodeUpdateStatus Opcode = 3
	// OpcodeHello is the first packet the server sends after the connection
	// opens. D carries the heartbeat interval, in milliseconds.
	OpcodeHello Opcode = 10
	// OpcodeHeartbeatAck is the server's response to a client heartbeat.
	OpcodeHeartbeatAck Opcode = 11
)

// Packet is the envelope every JSON message exchanged over the gateway is
// wrapped in.
type Packet struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int32          `json:"s,omitempty"` // Sequence number, set on dispatch events only.
	E  *string         `json:"e,omitempty"` // Event name, set on dispatch events only.
}

// PacketData is the set of types a [Packet]'s D field can be decoded into.
// It's deliberately permissive: any JSON-serializable struct describing a
// payload shape satisfies it.
type PacketData interface {
	any
}

// Decode unmarshals p.D into a value of type P.
func Decode[P PacketData](p Packet) (P, error) {
	var data P
	if len(p.D) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(p.D, &data); err != nil {
		return data, jsonErr(err)
	}
	return data, nil
}

// Encode builds a [Packet] with D set to the JSON encoding of data.
func Encode[P PacketData](op Opcode, data P) (Packet, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Packet{}, jsonErr(err)
	}
	return Packet{Op: op, D: raw}, nil
}

// HelloData is the payload carried by an [OpcodeHello] packet.
type HelloData struct {
	HeartbeatIntervalMS uint64 `json:"heartbeat_interval"`
}

// HeartbeatData is the payload sent with an [OpcodeHeartbeat] packet: the
// last sequence number the client observed, or nil if none has arrived yet.
type HeartbeatData struct {
	Sequence *int32
}

// MarshalJSON encodes the sequence number directly, or the JSON literal
// null when no sequence number has been observed yet.
func (h HeartbeatData) MarshalJSON() ([]byte, error) {
	if h.Sequence == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*h.Sequence)
}
