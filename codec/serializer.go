package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// KeySerializer turns a Key into the bytes stored in a bucket entry and
// back. The serializer id is written into every bucket's header; Tree.Load
// reads it back from the root bucket (spec §3).
type KeySerializer interface {
	ID() byte
	EncodeKey(k Key) ([]byte, error)
	DecodeKey(b []byte) (Key, error)
}

// ValueSerializer does the same for the opaque value half of an entry.
type ValueSerializer interface {
	ID() byte
	EncodeValue(v any) ([]byte, error)
	DecodeValue(b []byte) (any, error)
}

// rawCodec (id 0) treats Key as a single Bytes part and values as raw
// []byte, with no encoding overhead — the fast path for byte-string keys.
type rawCodec struct{}

func (rawCodec) ID() byte { return 0 }

func (rawCodec) EncodeKey(k Key) ([]byte, error) {
	if k.Arity() != 1 || k.Parts[0].Kind != KindBytes {
		return nil, fmt.Errorf("codec: raw key serializer requires a single bytes part")
	}
	return k.Parts[0].Bytes, nil
}

func (rawCodec) DecodeKey(b []byte) (Key, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Simple(BytesPart(cp)), nil
}

func (rawCodec) EncodeValue(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("codec: raw value serializer requires []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) DecodeValue(b []byte) (any, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

// RawCodec is the singleton raw-bytes serializer (id 0).
var RawCodec = rawCodec{}

// msgpackKeyCodec (id 1) encodes arbitrary composite Key values, supporting
// the structured/partial-key search scenarios (spec §4.3, S4).
type msgpackKeyCodec struct{}

type wirePart struct {
	Kind     int     `msgpack:"k"`
	Int      int64   `msgpack:"i,omitempty"`
	Float    float64 `msgpack:"f,omitempty"`
	Str      string  `msgpack:"s,omitempty"`
	Bytes    []byte  `msgpack:"b,omitempty"`
	Sentinel int     `msgpack:"n,omitempty"`
}

func (msgpackKeyCodec) ID() byte { return 1 }

// EncodeKey also round-trips sentinel parts: a stored key never carries
// one, but a partial-key search boundary (spec §4.3's PartialMajor/
// PartialMinor/PartialBetween) pads a short key with LowPart/HighPart
// sentinels before it reaches descendRaw, which compares by decoding
// both sides through this same codec.
func (msgpackKeyCodec) EncodeKey(k Key) ([]byte, error) {
	parts := make([]wirePart, len(k.Parts))
	for i, p := range k.Parts {
		parts[i] = wirePart{
			Kind: int(p.Kind), Int: p.Int, Float: p.Float, Str: p.Str, Bytes: p.Bytes,
			Sentinel: int(p.Sentinel),
		}
	}
	return msgpack.Marshal(parts)
}

func (msgpackKeyCodec) DecodeKey(b []byte) (Key, error) {
	var parts []wirePart
	if err := msgpack.Unmarshal(b, &parts); err != nil {
		return Key{}, err
	}
	out := make([]Part, len(parts))
	for i, wp := range parts {
		out[i] = Part{
			Kind: PartKind(wp.Kind), Int: wp.Int, Float: wp.Float, Str: wp.Str, Bytes: wp.Bytes,
			Sentinel: Sentinel(wp.Sentinel),
		}
	}
	return Key{Parts: out}, nil
}

// MsgpackKeyCodec is the singleton structured-key serializer (id 1), used
// whenever a tree's keys are composite.
var MsgpackKeyCodec = msgpackKeyCodec{}

// msgpackValueCodec (id 1) round-trips arbitrary Go values through
// msgpack, for trees whose values are structured rather than raw bytes.
type msgpackValueCodec struct{}

func (msgpackValueCodec) ID() byte { return 1 }

func (msgpackValueCodec) EncodeValue(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackValueCodec) DecodeValue(b []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MsgpackValueCodec is the singleton structured-value serializer (id 1).
var MsgpackValueCodec = msgpackValueCodec{}

// Registry resolves a stored serializer id back to a concrete codec on
// tree Load, mirroring the root bucket's keySerializerId/valueSerializerId
// fields (spec §3).
type Registry struct {
	keys   map[byte]KeySerializer
	values map[byte]ValueSerializer
}

// NewRegistry returns a Registry pre-populated with the two codecs this
// repository ships (raw and msgpack).
func NewRegistry() *Registry {
	r := &Registry{
		keys:   map[byte]KeySerializer{RawCodec.ID(): RawCodec, MsgpackKeyCodec.ID(): MsgpackKeyCodec},
		values: map[byte]ValueSerializer{RawCodec.ID(): RawCodec, MsgpackValueCodec.ID(): MsgpackValueCodec},
	}
	return r
}

func (r *Registry) RegisterKeySerializer(s KeySerializer) { r.keys[s.ID()] = s }

func (r *Registry) RegisterValueSerializer(s ValueSerializer) { r.values[s.ID()] = s }

func (r *Registry) KeySerializer(id byte) (KeySerializer, error) {
	s, ok := r.keys[id]
	if !ok {
		return nil, fmt.Errorf("codec: unknown key serializer id %d", id)
	}
	return s, nil
}

func (r *Registry) ValueSerializer(id byte) (ValueSerializer, error) {
	s, ok := r.values[id]
	if !ok {
		return nil, fmt.Errorf("codec: unknown value serializer id %d", id)
	}
	return s, nil
}
