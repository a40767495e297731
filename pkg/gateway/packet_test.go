package gateway

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	p := Packet{D: json.RawMessage(`{"name":"alice"}`)}
	got, err := Decode[payload](p)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("Decode() = %+v, want Name = %q", got, "alice")
	}
}

func TestDecodeEmpty(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	got, err := Decode[payload](Packet{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != "" {
		t.Errorf("Decode() = %+v, want zero value", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	_, err := Decode[payload](Packet{D: json.RawMessage(`not json`)})
	if !errors.Is(err, ErrJSON) {
		t.Errorf("Decode() error = %v, want %v", err, ErrJSON)
	}
}

func TestEncode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	p, err := Encode(OpcodeIdentify, payload{Name: "alice"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if p.Op != OpcodeIdentify {
		t.Errorf("Encode() Op = %v, want %v", p.Op, OpcodeIdentify)
	}
	if string(p.D) != `{"name":"alice"}` {
		t.Errorf("Encode() D = %s, want %s", p.D, `{"name":"alice"}`)
	}
}

func TestHeartbeatDataMarshalJSON(t *testing.T) {
	seq := int32(42)

	tests := []struct {
		name string
		data HeartbeatData
		want string
	}{
		{name: "nil_sequence", data: HeartbeatData{}, want: "null"},
		{name: "with_sequence", data: HeartbeatData{Sequence: &seq}, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.data)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("json.Marshal() = %s, want %s", b, tt.want)
			}
		})
	}
}
