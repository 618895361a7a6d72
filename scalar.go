package graft

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ValueCodec converts leaf values between Go and plain data.
type ValueCodec interface {
	// Accepts reports whether the codec handles values of type t.
	Accepts(t reflect.Type) bool

	// Encode returns the plain-data form of v.
	Encode(v reflect.Value, implicit bool) (any, error)

	// Decode converts node into a value of type t. Implicit enables
	// conversions between different scalar kinds.
	Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error)
}

// Built-in scalar codecs.
var (
	Text      ValueCodec = textCodec{}
	Number    ValueCodec = numberCodec{}
	Boolean   ValueCodec = booleanCodec{}
	Timestamp ValueCodec = timestampCodec{}
	Binary    ValueCodec = binaryCodec{}
)

// Extension codecs, bound per field or per type.
var (
	UUIDCodec     ValueCodec = uuidCodec{}
	DurationCodec ValueCodec = durationCodec{}
	TextCodec     ValueCodec = textMarshalerCodec{}
)

var (
	timeType          = reflect.TypeFor[time.Time]()
	durationType      = reflect.TypeFor[time.Duration]()
	uuidType          = reflect.TypeFor[uuid.UUID]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// leafCodec returns the built-in codec for t, if t is a leaf.
func leafCodec(t reflect.Type) (ValueCodec, bool) {
	if t == timeType {
		return Timestamp, true
	}
	if t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalType) {
		return TextCodec, true
	}
	switch t.Kind() {
	case reflect.String:
		return Text, true
	case reflect.Bool:
		return Boolean, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Binary, true
		}
	}
	return nil, false
}

func conversionError(node any, t reflect.Type) error {
	return fmt.Errorf("cannot convert %T to %s", node, t)
}

type textCodec struct{}

func (textCodec) Accepts(t reflect.Type) bool { return t.Kind() == reflect.String }

func (textCodec) Encode(v reflect.Value, implicit bool) (any, error) {
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	if implicit {
		if s, ok := formatScalar(v.Interface()); ok {
			return s, nil
		}
	}
	return nil, conversionError(v.Interface(), reflect.TypeFor[string]())
}

func (textCodec) Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error) {
	if t.Kind() != reflect.String {
		return reflect.Value{}, conversionError(node, t)
	}
	s, ok := node.(string)
	if !ok && implicit {
		s, ok = formatScalar(node)
	}
	if !ok {
		// json.Number has string kind but is a number node.
		rv := reflect.ValueOf(node)
		if _, number := node.(json.Number); number || rv.Kind() != reflect.String {
			return reflect.Value{}, conversionError(node, t)
		}
		s = rv.String()
	}
	out := reflect.New(t).Elem()
	out.SetString(s)
	return out, nil
}

// formatScalar renders numbers and booleans as text.
func formatScalar(node any) (string, bool) {
	if n, ok := node.(json.Number); ok {
		return n.String(), true
	}
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	case reflect.String:
		return rv.String(), true
	}
	return "", false
}

type numberCodec struct{}

func (numberCodec) Accepts(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (numberCodec) Encode(v reflect.Value, implicit bool) (any, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	}
	if implicit {
		if f, ok := parseNumber(v.Interface()); ok {
			return f, nil
		}
	}
	return nil, conversionError(v.Interface(), reflect.TypeFor[float64]())
}

func (numberCodec) Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	if n, ok := node.(json.Number); ok {
		if err := setNumber(out, string(n)); err != nil {
			return reflect.Value{}, err
		}
		return out, nil
	}

	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return out, setInt(out, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return out, setUint(out, rv.Uint())
	case reflect.Float32, reflect.Float64:
		return out, setFloat(out, rv.Float())
	}

	if implicit {
		switch rv.Kind() {
		case reflect.String:
			if err := setNumber(out, rv.String()); err != nil {
				return reflect.Value{}, err
			}
			return out, nil
		case reflect.Bool:
			if rv.Bool() {
				return out, setInt(out, 1)
			}
			return out, setInt(out, 0)
		}
	}
	return reflect.Value{}, conversionError(node, t)
}

// parseNumber converts strings and booleans to a number.
func parseNumber(node any) (any, bool) {
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.String:
		if i, err := strconv.ParseInt(rv.String(), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(rv.String(), 64); err == nil {
			return f, true
		}
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), true
		}
		return int64(0), true
	}
	return nil, false
}

func setNumber(out reflect.Value, s string) error {
	switch out.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, out.Type().Bits())
		if err != nil {
			return err
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, out.Type().Bits())
		if err != nil {
			return err
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, out.Type().Bits())
		if err != nil {
			return err
		}
		out.SetFloat(f)
	default:
		return fmt.Errorf("cannot convert number to %s", out.Type())
	}
	return nil
}

func setInt(out reflect.Value, i int64) error {
	switch out.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if out.OverflowInt(i) {
			return fmt.Errorf("%d overflows %s", i, out.Type())
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i < 0 || out.OverflowUint(uint64(i)) {
			return fmt.Errorf("%d overflows %s", i, out.Type())
		}
		out.SetUint(uint64(i))
	case reflect.Float32, reflect.Float64:
		out.SetFloat(float64(i))
	default:
		return fmt.Errorf("cannot convert number to %s", out.Type())
	}
	return nil
}

func setUint(out reflect.Value, u uint64) error {
	if u > math.MaxInt64 {
		switch out.Kind() {
		case reflect.Uint, reflect.Uint64, reflect.Uintptr:
			out.SetUint(u)
			return nil
		case reflect.Float32, reflect.Float64:
			out.SetFloat(float64(u))
			return nil
		}
		return fmt.Errorf("%d overflows %s", u, out.Type())
	}
	return setInt(out, int64(u))
}

func setFloat(out reflect.Value, f float64) error {
	switch out.Kind() {
	case reflect.Float32, reflect.Float64:
		if out.OverflowFloat(f) {
			return fmt.Errorf("%g overflows %s", f, out.Type())
		}
		out.SetFloat(f)
		return nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%g is not an integer", f)
	}
	if f < 0 {
		if f < math.MinInt64 {
			return fmt.Errorf("%g overflows %s", f, out.Type())
		}
		return setInt(out, int64(f))
	}
	if f >= math.MaxUint64 {
		return fmt.Errorf("%g overflows %s", f, out.Type())
	}
	return setUint(out, uint64(f))
}

type booleanCodec struct{}

func (booleanCodec) Accepts(t reflect.Type) bool { return t.Kind() == reflect.Bool }

func (booleanCodec) Encode(v reflect.Value, implicit bool) (any, error) {
	if v.Kind() == reflect.Bool {
		return v.Bool(), nil
	}
	if implicit {
		if b, ok := parseBool(v.Interface()); ok {
			return b, nil
		}
	}
	return nil, conversionError(v.Interface(), reflect.TypeFor[bool]())
}

func (booleanCodec) Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error) {
	if t.Kind() != reflect.Bool {
		return reflect.Value{}, conversionError(node, t)
	}
	rv := reflect.ValueOf(node)
	var b, ok bool
	if rv.Kind() == reflect.Bool {
		b, ok = rv.Bool(), true
	} else if implicit {
		b, ok = parseBool(node)
	}
	if !ok {
		return reflect.Value{}, conversionError(node, t)
	}
	out := reflect.New(t).Elem()
	out.SetBool(b)
	return out, nil
}

// parseBool converts strings and numbers to a boolean.
func parseBool(node any) (bool, bool) {
	if n, ok := node.(json.Number); ok {
		f, err := n.Float64()
		return f != 0, err == nil
	}
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.String:
		b, err := strconv.ParseBool(rv.String())
		return b, err == nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, true
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, true
	case reflect.Bool:
		return rv.Bool(), true
	}
	return false, false
}

type timestampCodec struct{}

func (timestampCodec) Accepts(t reflect.Type) bool { return t == timeType }

func (timestampCodec) Encode(v reflect.Value, _ bool) (any, error) {
	ts, ok := v.Interface().(time.Time)
	if !ok {
		return nil, conversionError(v.Interface(), timeType)
	}
	return ts.Format(time.RFC3339Nano), nil
}

// Decode accepts RFC 3339 text and native time values. With implicit
// conversion numbers are read as Unix milliseconds.
func (timestampCodec) Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error) {
	if t != timeType {
		return reflect.Value{}, conversionError(node, t)
	}
	var ts time.Time
	switch n := node.(type) {
	case time.Time:
		ts = n
	case interface{ Time() time.Time }:
		ts = n.Time()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, n)
		if err != nil {
			return reflect.Value{}, err
		}
		ts = parsed
	default:
		if !implicit {
			return reflect.Value{}, conversionError(node, t)
		}
		ms, err := Number.Decode(node, reflect.TypeFor[int64](), false)
		if err != nil {
			return reflect.Value{}, conversionError(node, t)
		}
		ts = time.UnixMilli(ms.Int())
	}
	return reflect.ValueOf(ts), nil
}

type binaryCodec struct{}

func (binaryCodec) Accepts(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func (binaryCodec) Encode(v reflect.Value, _ bool) (any, error) {
	return base64.StdEncoding.EncodeToString(v.Bytes()), nil
}

// Decode accepts base64 text and raw bytes.
func (binaryCodec) Decode(node any, t reflect.Type, _ bool) (reflect.Value, error) {
	var b []byte
	switch n := node.(type) {
	case []byte:
		b = n
	case string:
		decoded, err := base64.StdEncoding.DecodeString(n)
		if err != nil {
			return reflect.Value{}, err
		}
		b = decoded
	default:
		return reflect.Value{}, conversionError(node, t)
	}
	out := reflect.New(t).Elem()
	out.SetBytes(append([]byte(nil), b...))
	return out, nil
}

type uuidCodec struct{}

func (uuidCodec) Accepts(t reflect.Type) bool { return t == uuidType }

func (uuidCodec) Encode(v reflect.Value, _ bool) (any, error) {
	id, ok := v.Interface().(uuid.UUID)
	if !ok {
		return nil, conversionError(v.Interface(), uuidType)
	}
	return id.String(), nil
}

// Decode accepts the textual forms understood by uuid.Parse and 16 raw bytes.
func (uuidCodec) Decode(node any, t reflect.Type, _ bool) (reflect.Value, error) {
	var id uuid.UUID
	var err error
	switch n := node.(type) {
	case string:
		id, err = uuid.Parse(n)
	case []byte:
		id, err = uuid.FromBytes(n)
	default:
		err = conversionError(node, t)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(id).Convert(t), nil
}

type durationCodec struct{}

func (durationCodec) Accepts(t reflect.Type) bool { return t == durationType }

func (durationCodec) Encode(v reflect.Value, _ bool) (any, error) {
	return time.Duration(v.Int()).String(), nil
}

// Decode accepts time.ParseDuration text. With implicit conversion
// numbers are read as nanoseconds.
func (durationCodec) Decode(node any, t reflect.Type, implicit bool) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if s, ok := node.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(int64(d))
		return out, nil
	}
	if !implicit {
		return reflect.Value{}, conversionError(node, t)
	}
	return Number.Decode(node, t, false)
}

type textMarshalerCodec struct{}

func (textMarshalerCodec) Accepts(t reflect.Type) bool {
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalType)
}

func (textMarshalerCodec) Encode(v reflect.Value, _ bool) (any, error) {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok {
		return nil, conversionError(v.Interface(), v.Type())
	}
	text, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}

func (textMarshalerCodec) Decode(node any, t reflect.Type, _ bool) (reflect.Value, error) {
	s, ok := node.(string)
	if !ok {
		return reflect.Value{}, conversionError(node, t)
	}
	ptr := reflect.New(t)
	u, ok := ptr.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return reflect.Value{}, conversionError(node, t)
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}
