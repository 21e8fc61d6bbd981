package value

import (
	"math"
	"time"
)

// GeoPoint represents a geographic coordinate pair
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value represents a typed Firestore value. Exactly one of the data
// fields is meaningful, selected by Type.
type Value struct {
	Type  Type
	Bool  bool
	Int   int64
	Dbl   float64
	Time  time.Time
	Str   string // string and reference payloads
	Bytes []byte
	Geo   GeoPoint
	Array []*Value
	Map   map[string]*Value
}

// Null returns the null value
func Null() *Value {
	return &Value{Type: TypeNull}
}

// Boolean returns a boolean value
func Boolean(b bool) *Value {
	return &Value{Type: TypeBoolean, Bool: b}
}

// Integer returns a 64-bit integer value
func Integer(i int64) *Value {
	return &Value{Type: TypeInteger, Int: i}
}

// Double returns a 64-bit floating point value
func Double(f float64) *Value {
	return &Value{Type: TypeDouble, Dbl: f}
}

// Timestamp returns a timestamp value, normalized to UTC
func Timestamp(t time.Time) *Value {
	return &Value{Type: TypeTimestamp, Time: t.UTC()}
}

// String returns a string value
func String(s string) *Value {
	return &Value{Type: TypeString, Str: s}
}

// BytesVal returns a bytes value
func BytesVal(b []byte) *Value {
	return &Value{Type: TypeBytes, Bytes: b}
}

// Reference returns a document reference value holding a document path
func Reference(path string) *Value {
	return &Value{Type: TypeReference, Str: path}
}

// Geo returns a geo point value
func Geo(lat, lon float64) *Value {
	return &Value{Type: TypeGeoPoint, Geo: GeoPoint{Latitude: lat, Longitude: lon}}
}

// ArrayVal returns an array value
func ArrayVal(elems ...*Value) *Value {
	return &Value{Type: TypeArray, Array: elems}
}

// MapVal returns a map value
func MapVal(fields map[string]*Value) *Value {
	if fields == nil {
		fields = make(map[string]*Value)
	}
	return &Value{Type: TypeMap, Map: fields}
}

// AsFloat returns the numeric payload as a float64. Non-numeric values
// yield zero.
func (v *Value) AsFloat() float64 {
	switch v.Type {
	case TypeInteger:
		return float64(v.Int)
	case TypeDouble:
		return v.Dbl
	default:
		return 0
	}
}

// Clone returns a deep copy of the value
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	out := *v
	if v.Bytes != nil {
		out.Bytes = append([]byte(nil), v.Bytes...)
	}
	if v.Array != nil {
		out.Array = make([]*Value, len(v.Array))
		for i, e := range v.Array {
			out.Array[i] = e.Clone()
		}
	}
	if v.Map != nil {
		out.Map = make(map[string]*Value, len(v.Map))
		for k, e := range v.Map {
			out.Map[k] = e.Clone()
		}
	}
	return &out
}

// CloneFields deep-copies a field map
func CloneFields(fields map[string]*Value) map[string]*Value {
	if fields == nil {
		return nil
	}
	out := make(map[string]*Value, len(fields))
	for k, v := range fields {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports structural equality. Array order is significant, map key
// order is not. NaN does not equal itself, matching IEEE-754.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeInteger:
		return v.Int == o.Int
	case TypeDouble:
		return v.Dbl == o.Dbl
	case TypeTimestamp:
		return v.Time.Equal(o.Time)
	case TypeString, TypeReference:
		return v.Str == o.Str
	case TypeBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case TypeGeoPoint:
		return v.Geo == o.Geo
	case TypeArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, e := range v.Map {
			oe, ok := o.Map[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// FieldsEqual reports structural equality of two field maps
func FieldsEqual(a, b map[string]*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		o, ok := b[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// CompareNumbers orders two numeric values. Integers and doubles compare
// on the number line; NaN sorts below everything.
func CompareNumbers(a, b *Value) int {
	af, bf := a.AsFloat(), b.AsFloat()
	if a.Type == TypeInteger && b.Type == TypeInteger {
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	}
	switch {
	case math.IsNaN(af) && math.IsNaN(bf):
		return 0
	case math.IsNaN(af):
		return -1
	case math.IsNaN(bf):
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}
