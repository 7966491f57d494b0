package codec

import (
	"reflect"
	"testing"
)

func TestRawCodecRoundTrip(t *testing.T) {
	k := Simple(BytesPart([]byte("hello")))
	enc, err := RawCodec.EncodeKey(k)
	if err != nil {
		t.Fatalf("EncodeKey failed: %v", err)
	}
	dec, err := RawCodec.DecodeKey(enc)
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	if dec.Parts[0].Kind != KindBytes || string(dec.Parts[0].Bytes) != "hello" {
		t.Fatalf("round trip mismatch: got %+v", dec)
	}

	v := []byte("payload")
	ev, err := RawCodec.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	dv, err := RawCodec.DecodeValue(ev)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if !reflect.DeepEqual(dv, v) {
		t.Fatalf("value round trip mismatch: got %v, want %v", dv, v)
	}
}

func TestRawCodecRejectsNonBytesKey(t *testing.T) {
	if _, err := RawCodec.EncodeKey(Simple(IntPart(1))); err == nil {
		t.Fatalf("expected an error encoding a non-bytes key with the raw codec")
	}
}

func TestRawCodecRejectsNonBytesValue(t *testing.T) {
	if _, err := RawCodec.EncodeValue(42); err == nil {
		t.Fatalf("expected an error encoding a non-[]byte value with the raw codec")
	}
}

func TestMsgpackKeyCodecRoundTrip(t *testing.T) {
	k := Key{Parts: []Part{IntPart(7), StringPart("x"), FloatPart(3.5)}}
	enc, err := MsgpackKeyCodec.EncodeKey(k)
	if err != nil {
		t.Fatalf("EncodeKey failed: %v", err)
	}
	dec, err := MsgpackKeyCodec.DecodeKey(enc)
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	if !reflect.DeepEqual(dec, k) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", dec, k)
	}
}

func TestMsgpackKeyCodecRoundTripsSentinelParts(t *testing.T) {
	k := Key{Parts: []Part{IntPart(1), LowPart()}}
	enc, err := MsgpackKeyCodec.EncodeKey(k)
	if err != nil {
		t.Fatalf("EncodeKey failed: %v", err)
	}
	dec, err := MsgpackKeyCodec.DecodeKey(enc)
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	if !reflect.DeepEqual(dec, k) {
		t.Fatalf("sentinel part did not round trip: got %+v, want %+v", dec, k)
	}
}

func TestMsgpackValueCodecRoundTrip(t *testing.T) {
	v := map[string]any{"a": int8(1), "b": "two"}
	enc, err := MsgpackValueCodec.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	if _, err := MsgpackValueCodec.DecodeValue(enc); err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
}

func TestRegistryResolvesBuiltinCodecs(t *testing.T) {
	r := NewRegistry()

	if ks, err := r.KeySerializer(RawCodec.ID()); err != nil || ks.ID() != RawCodec.ID() {
		t.Fatalf("expected raw key codec resolvable, got %v, err %v", ks, err)
	}
	if ks, err := r.KeySerializer(MsgpackKeyCodec.ID()); err != nil || ks.ID() != MsgpackKeyCodec.ID() {
		t.Fatalf("expected msgpack key codec resolvable, got %v, err %v", ks, err)
	}
	if vs, err := r.ValueSerializer(MsgpackValueCodec.ID()); err != nil || vs.ID() != MsgpackValueCodec.ID() {
		t.Fatalf("expected msgpack value codec resolvable, got %v, err %v", vs, err)
	}
	if _, err := r.KeySerializer(99); err == nil {
		t.Fatalf("expected an error for an unknown serializer id")
	}
}

func TestRegistryRegisterCustomCodec(t *testing.T) {
	r := NewRegistry()
	r.RegisterKeySerializer(MsgpackKeyCodec)
	if ks, err := r.KeySerializer(MsgpackKeyCodec.ID()); err != nil || ks == nil {
		t.Fatalf("expected registered codec to be resolvable, err %v", err)
	}
}
