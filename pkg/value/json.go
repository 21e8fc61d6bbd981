package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// FormatTime renders a timestamp in the wire format: ISO-8601 UTC with
// fractional seconds and a Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a wire-format timestamp
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// MarshalJSON encodes the value in the production REST schema: a single-key
// object selected by type. Integers are decimal strings, bytes are base64,
// non-finite doubles use the literals NaN, Infinity and -Infinity.
func (v *Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case TypeNull:
		return []byte(`{"nullValue":null}`), nil
	case TypeBoolean:
		return json.Marshal(map[string]bool{"booleanValue": v.Bool})
	case TypeInteger:
		return json.Marshal(map[string]string{"integerValue": strconv.FormatInt(v.Int, 10)})
	case TypeDouble:
		if math.IsNaN(v.Dbl) {
			return []byte(`{"doubleValue":"NaN"}`), nil
		}
		if math.IsInf(v.Dbl, 1) {
			return []byte(`{"doubleValue":"Infinity"}`), nil
		}
		if math.IsInf(v.Dbl, -1) {
			return []byte(`{"doubleValue":"-Infinity"}`), nil
		}
		return json.Marshal(map[string]float64{"doubleValue": v.Dbl})
	case TypeTimestamp:
		return json.Marshal(map[string]string{"timestampValue": FormatTime(v.Time)})
	case TypeString:
		return json.Marshal(map[string]string{"stringValue": v.Str})
	case TypeBytes:
		return json.Marshal(map[string]string{"bytesValue": base64.StdEncoding.EncodeToString(v.Bytes)})
	case TypeReference:
		return json.Marshal(map[string]string{"referenceValue": v.Str})
	case TypeGeoPoint:
		return json.Marshal(map[string]GeoPoint{"geoPointValue": v.Geo})
	case TypeArray:
		inner := struct {
			Values []*Value `json:"values,omitempty"`
		}{Values: v.Array}
		return json.Marshal(map[string]interface{}{"arrayValue": inner})
	case TypeMap:
		inner := struct {
			Fields map[string]*Value `json:"fields,omitempty"`
		}{Fields: v.Map}
		return json.Marshal(map[string]interface{}{"mapValue": inner})
	}
	return nil, fmt.Errorf("cannot encode value of type %s", v.Type)
}

// UnmarshalJSON decodes a REST schema value. Exactly one type key must be
// present.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("value must have exactly one type field, got %d", len(raw))
	}
	for key, body := range raw {
		return v.decodeTyped(key, body)
	}
	return nil
}

func (v *Value) decodeTyped(key string, body json.RawMessage) error {
	switch key {
	case "nullValue":
		*v = Value{Type: TypeNull}
		return nil
	case "booleanValue":
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return fmt.Errorf("booleanValue: %w", err)
		}
		*v = Value{Type: TypeBoolean, Bool: b}
		return nil
	case "integerValue":
		i, err := decodeInt(body)
		if err != nil {
			return err
		}
		*v = Value{Type: TypeInteger, Int: i}
		return nil
	case "doubleValue":
		f, err := decodeDouble(body)
		if err != nil {
			return err
		}
		*v = Value{Type: TypeDouble, Dbl: f}
		return nil
	case "timestampValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return fmt.Errorf("timestampValue: %w", err)
		}
		t, err := ParseTime(s)
		if err != nil {
			return err
		}
		*v = Value{Type: TypeTimestamp, Time: t}
		return nil
	case "stringValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return fmt.Errorf("stringValue: %w", err)
		}
		*v = Value{Type: TypeString, Str: s}
		return nil
	case "bytesValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return fmt.Errorf("bytesValue: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("bytesValue: invalid base64: %w", err)
		}
		*v = Value{Type: TypeBytes, Bytes: b}
		return nil
	case "referenceValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return fmt.Errorf("referenceValue: %w", err)
		}
		*v = Value{Type: TypeReference, Str: s}
		return nil
	case "geoPointValue":
		var g GeoPoint
		if err := json.Unmarshal(body, &g); err != nil {
			return fmt.Errorf("geoPointValue: %w", err)
		}
		*v = Value{Type: TypeGeoPoint, Geo: g}
		return nil
	case "arrayValue":
		var inner struct {
			Values []*Value `json:"values"`
		}
		if err := json.Unmarshal(body, &inner); err != nil {
			return fmt.Errorf("arrayValue: %w", err)
		}
		if inner.Values == nil {
			inner.Values = []*Value{}
		}
		*v = Value{Type: TypeArray, Array: inner.Values}
		return nil
	case "mapValue":
		var inner struct {
			Fields map[string]*Value `json:"fields"`
		}
		if err := json.Unmarshal(body, &inner); err != nil {
			return fmt.Errorf("mapValue: %w", err)
		}
		if inner.Fields == nil {
			inner.Fields = map[string]*Value{}
		}
		*v = Value{Type: TypeMap, Map: inner.Fields}
		return nil
	}
	return fmt.Errorf("unknown value type field %q", key)
}

// decodeInt accepts the canonical decimal string but also a bare JSON
// number, which some client libraries still send.
func decodeInt(body json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("integerValue: %w", err)
		}
		return i, nil
	}
	var i int64
	if err := json.Unmarshal(body, &i); err != nil {
		return 0, fmt.Errorf("integerValue: %w", err)
	}
	return i, nil
}

func decodeDouble(body json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(body, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return 0, fmt.Errorf("doubleValue: expected number or literal string")
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("doubleValue: %w", err)
	}
	return f, nil
}
