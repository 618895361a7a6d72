package graft

import (
	"encoding/json"
	"math"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNumberCodec_Decode(t *testing.T) {
	tests := []struct {
		name     string
		node     any
		typ      reflect.Type
		implicit bool
		want     any
		wantErr  bool
	}{
		{"int64 to int", int64(42), reflect.TypeFor[int](), false, 42, false},
		{"float to int", 3.0, reflect.TypeFor[int32](), false, int32(3), false},
		{"fraction to int", 3.5, reflect.TypeFor[int](), false, nil, true},
		{"overflow int8", int64(300), reflect.TypeFor[int8](), false, nil, true},
		{"negative to uint", int64(-1), reflect.TypeFor[uint](), false, nil, true},
		{"max uint64", uint64(math.MaxUint64), reflect.TypeFor[uint64](), false, uint64(math.MaxUint64), false},
		{"json number", json.Number("9007199254740993"), reflect.TypeFor[int64](), false, int64(9007199254740993), false},
		{"json number float", json.Number("1.25"), reflect.TypeFor[float64](), false, 1.25, false},
		{"narrow int from yaml", 7, reflect.TypeFor[uint16](), false, uint16(7), false},
		{"string without implicit", "12", reflect.TypeFor[int](), false, nil, true},
		{"string with implicit", "12", reflect.TypeFor[int](), true, 12, false},
		{"bad string with implicit", "twelve", reflect.TypeFor[int](), true, nil, true},
		{"bool with implicit", true, reflect.TypeFor[int](), true, 1, false},
		{"bool without implicit", true, reflect.TypeFor[int](), false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Number.Decode(tt.node, tt.typ, tt.implicit)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Decode() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got.Interface() != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got.Interface(), tt.want)
			}
		})
	}
}

func TestNumberCodec_Encode(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int8(-3), int64(-3)},
		{uint32(7), uint64(7)},
		{float32(0.5), 0.5},
		{time.Duration(5), int64(5)},
	}

	for _, tt := range tests {
		got, err := Number.Encode(reflect.ValueOf(tt.in), false)
		if err != nil {
			t.Fatalf("Encode(%v) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Encode(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	if _, err := Number.Encode(reflect.ValueOf("1"), false); err == nil {
		t.Error("Encode(string) without implicit should fail")
	}
	got, err := Number.Encode(reflect.ValueOf("1"), true)
	if err != nil || got != int64(1) {
		t.Errorf("Encode(string) with implicit = %#v, %v, want 1", got, err)
	}
}

func TestTextCodec(t *testing.T) {
	type label string

	got, err := Text.Decode("hi", reflect.TypeFor[label](), false)
	if err != nil || got.Interface() != label("hi") {
		t.Errorf("Decode() = %v, %v, want hi", got, err)
	}

	if _, err := Text.Decode(int64(5), reflect.TypeFor[string](), false); err == nil {
		t.Error("Decode(number) without implicit should fail")
	}
	got, err = Text.Decode(int64(5), reflect.TypeFor[string](), true)
	if err != nil || got.Interface() != "5" {
		t.Errorf("Decode(number) with implicit = %v, %v, want 5", got, err)
	}
	if _, err := Text.Decode(json.Number("12"), reflect.TypeFor[string](), false); err == nil {
		t.Error("Decode(json.Number) without implicit should fail")
	}
	got, err = Text.Decode(label("named"), reflect.TypeFor[string](), false)
	if err != nil || got.Interface() != "named" {
		t.Errorf("Decode(named string) = %v, %v, want named", got, err)
	}
	got, err = Text.Decode(json.Number("2.5"), reflect.TypeFor[string](), true)
	if err != nil || got.Interface() != "2.5" {
		t.Errorf("Decode(json.Number) with implicit = %v, %v, want 2.5", got, err)
	}

	enc, err := Text.Encode(reflect.ValueOf(true), true)
	if err != nil || enc != "true" {
		t.Errorf("Encode(bool) with implicit = %v, %v, want true", enc, err)
	}
}

func TestBooleanCodec(t *testing.T) {
	tests := []struct {
		node     any
		implicit bool
		want     bool
		wantErr  bool
	}{
		{true, false, true, false},
		{"true", false, false, true},
		{"true", true, true, false},
		{int64(0), true, false, false},
		{2.5, true, true, false},
		{"maybe", true, false, true},
	}

	for _, tt := range tests {
		got, err := Boolean.Decode(tt.node, reflect.TypeFor[bool](), tt.implicit)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Decode(%#v) should fail", tt.node)
			}
			continue
		}
		if err != nil {
			t.Errorf("Decode(%#v) error: %v", tt.node, err)
			continue
		}
		if got.Bool() != tt.want {
			t.Errorf("Decode(%#v) = %v, want %v", tt.node, got.Bool(), tt.want)
		}
	}
}

func TestTimestampCodec(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

	enc, err := Timestamp.Encode(reflect.ValueOf(ts), false)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if enc != "2024-01-02T03:04:05.0000006Z" {
		t.Errorf("Encode() = %v", enc)
	}

	got, err := Timestamp.Decode(enc, reflect.TypeFor[time.Time](), false)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !got.Interface().(time.Time).Equal(ts) {
		t.Errorf("Decode() = %v, want %v", got, ts)
	}

	got, err = Timestamp.Decode(ts, reflect.TypeFor[time.Time](), false)
	if err != nil || !got.Interface().(time.Time).Equal(ts) {
		t.Errorf("Decode(time.Time) = %v, %v", got, err)
	}

	if _, err := Timestamp.Decode(int64(1704164645000), reflect.TypeFor[time.Time](), false); err == nil {
		t.Error("Decode(millis) without implicit should fail")
	}
	got, err = Timestamp.Decode(int64(1704164645000), reflect.TypeFor[time.Time](), true)
	if err != nil {
		t.Fatalf("Decode(millis) error: %v", err)
	}
	if want := time.UnixMilli(1704164645000); !got.Interface().(time.Time).Equal(want) {
		t.Errorf("Decode(millis) = %v, want %v", got, want)
	}

	if _, err := Timestamp.Decode("yesterday", reflect.TypeFor[time.Time](), false); err == nil {
		t.Error("Decode(bad text) should fail")
	}
}

func TestBinaryCodec(t *testing.T) {
	data := []byte{0x00, 0xff, 0x10}

	enc, err := Binary.Encode(reflect.ValueOf(data), false)
	if err != nil || enc != "AP8Q" {
		t.Fatalf("Encode() = %v, %v, want AP8Q", enc, err)
	}

	got, err := Binary.Decode(enc, reflect.TypeFor[[]byte](), false)
	if err != nil || string(got.Bytes()) != string(data) {
		t.Errorf("Decode(base64) = %v, %v", got, err)
	}
	got, err = Binary.Decode(data, reflect.TypeFor[[]byte](), false)
	if err != nil || string(got.Bytes()) != string(data) {
		t.Errorf("Decode(raw) = %v, %v", got, err)
	}
	if _, err := Binary.Decode("%%%", reflect.TypeFor[[]byte](), false); err == nil {
		t.Error("Decode(bad base64) should fail")
	}
}

func TestUUIDCodec(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	enc, err := UUIDCodec.Encode(reflect.ValueOf(id), false)
	if err != nil || enc != id.String() {
		t.Fatalf("Encode() = %v, %v", enc, err)
	}
	got, err := UUIDCodec.Decode(enc, reflect.TypeFor[uuid.UUID](), false)
	if err != nil || got.Interface() != id {
		t.Errorf("Decode(text) = %v, %v", got, err)
	}
	got, err = UUIDCodec.Decode(id[:], reflect.TypeFor[uuid.UUID](), false)
	if err != nil || got.Interface() != id {
		t.Errorf("Decode(bytes) = %v, %v", got, err)
	}
	if _, err := UUIDCodec.Decode("not-a-uuid", reflect.TypeFor[uuid.UUID](), false); err == nil {
		t.Error("Decode(bad) should fail")
	}
}

func TestDurationCodec(t *testing.T) {
	enc, err := DurationCodec.Encode(reflect.ValueOf(90*time.Second), false)
	if err != nil || enc != "1m30s" {
		t.Fatalf("Encode() = %v, %v, want 1m30s", enc, err)
	}
	got, err := DurationCodec.Decode("1m30s", reflect.TypeFor[time.Duration](), false)
	if err != nil || got.Interface() != 90*time.Second {
		t.Errorf("Decode() = %v, %v", got, err)
	}
	if _, err := DurationCodec.Decode(int64(5), reflect.TypeFor[time.Duration](), false); err == nil {
		t.Error("Decode(number) without implicit should fail")
	}
	got, err = DurationCodec.Decode(int64(5), reflect.TypeFor[time.Duration](), true)
	if err != nil || got.Interface() != time.Duration(5) {
		t.Errorf("Decode(number) with implicit = %v, %v", got, err)
	}
}

func TestTextMarshalerCodec(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")

	if c, ok := leafCodec(reflect.TypeFor[netip.Addr]()); !ok || c != TextCodec {
		t.Fatal("netip.Addr should use the text marshaler codec")
	}
	enc, err := TextCodec.Encode(reflect.ValueOf(addr), false)
	if err != nil || enc != "10.0.0.1" {
		t.Fatalf("Encode() = %v, %v", enc, err)
	}
	got, err := TextCodec.Decode(enc, reflect.TypeFor[netip.Addr](), false)
	if err != nil || got.Interface() != addr {
		t.Errorf("Decode() = %v, %v", got, err)
	}
}

func TestLeafCodec(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want ValueCodec
	}{
		{reflect.TypeFor[string](), Text},
		{reflect.TypeFor[bool](), Boolean},
		{reflect.TypeFor[float32](), Number},
		{reflect.TypeFor[time.Time](), Timestamp},
		{reflect.TypeFor[[]byte](), Binary},
		{reflect.TypeFor[uuid.UUID](), TextCodec},
	}
	for _, tt := range tests {
		got, ok := leafCodec(tt.typ)
		if !ok || got != tt.want {
			t.Errorf("leafCodec(%v) = %v, want %v", tt.typ, got, tt.want)
		}
	}

	for _, typ := range []reflect.Type{reflect.TypeFor[[]string](), reflect.TypeFor[struct{}](), reflect.TypeFor[*int]()} {
		if _, ok := leafCodec(typ); ok {
			t.Errorf("leafCodec(%v) should not match", typ)
		}
	}
}
