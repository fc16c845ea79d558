// Package codec implements the content policy of the object-storage port:
// JSON text for JSON-typed objects and maximum-level gzip for gzip-encoded
// ones.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

const dateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the Date for year, month and day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// DumpsJSON serializes v to JSON text. Lazy Rows are materialized first.
// Values JSON cannot represent (NaN, channels, complex numbers, funcs) are
// written in their fmt.Sprint form instead of failing the dump.
func DumpsJSON(v any) ([]byte, error) {
	v = materialize(v)
	b, err := json.Marshal(v)
	if err == nil {
		return b, nil
	}
	var typeErr *json.UnsupportedTypeError
	var valueErr *json.UnsupportedValueError
	if !errors.As(err, &typeErr) && !errors.As(err, &valueErr) {
		return nil, &pipeline.CodecError{Op: "json encode", Err: err}
	}
	b, err = json.Marshal(normalize(reflect.ValueOf(v)))
	if err != nil {
		return nil, &pipeline.CodecError{Op: "json encode", Err: err}
	}
	return b, nil
}

// LoadsJSON parses a single JSON value. Numbers decode as json.Number so
// integers beyond 2^53 survive a load and dump unchanged.
func LoadsJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, &pipeline.CodecError{Op: "json decode", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &pipeline.CodecError{Op: "json decode", Err: errors.New("invalid character after top-level value")}
	}
	return out, nil
}

// DecodeText returns b as a string, failing on invalid UTF-8.
func DecodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &pipeline.CodecError{Op: "utf-8 decode", Err: errors.New("invalid utf-8 sequence")}
	}
	return string(b), nil
}

func materialize(v any) any {
	rows, ok := v.(pipeline.Rows)
	if !ok {
		return v
	}
	out := []pipeline.Row{}
	for row := range rows {
		out = append(out, row)
	}
	return out
}

var marshalerType = reflect.TypeFor[json.Marshaler]()

func normalize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(marshalerType) {
		if _, err := json.Marshal(v.Interface()); err == nil {
			return v.Interface()
		}
		return fmt.Sprint(v.Interface())
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return normalize(v.Elem())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value())
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = normalize(v.Index(i))
		}
		return out
	case reflect.Struct:
		if _, err := json.Marshal(v.Interface()); err == nil {
			return v.Interface()
		}
		return fmt.Sprint(v.Interface())
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Sprint(v.Interface())
	default:
		return v.Interface()
	}
}
