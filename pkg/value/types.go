package value

// Type represents the data type of a Firestore value
type Type byte

const (
	TypeNull Type = iota
	TypeBoolean
	TypeInteger
	TypeDouble
	TypeTimestamp
	TypeString
	TypeBytes
	TypeReference
	TypeGeoPoint
	TypeArray
	TypeMap
)

// String returns the string representation of the type
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeTimestamp:
		return "timestamp"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeReference:
		return "reference"
	case TypeGeoPoint:
		return "geopoint"
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the type is integer or double
func (t Type) IsNumeric() bool {
	return t == TypeInteger || t == TypeDouble
}
