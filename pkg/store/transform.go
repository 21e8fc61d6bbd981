package store

import (
	"time"

	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// validateTransform checks a field transform: a parseable field path and
// exactly one operation with a well-typed operand.
func validateTransform(ft *wire.FieldTransform) error {
	if _, err := parseFieldPath(ft.FieldPath); err != nil {
		return wire.InvalidArgument("transform: %v", err)
	}
	ops := 0
	if ft.SetToServerValue != "" {
		if ft.SetToServerValue != wire.ServerValueRequestTime {
			return wire.InvalidArgument("transform: unsupported server value %q", ft.SetToServerValue)
		}
		ops++
	}
	for _, operand := range []*value.Value{ft.Increment, ft.Maximum, ft.Minimum} {
		if operand == nil {
			continue
		}
		if !operand.Type.IsNumeric() {
			return wire.InvalidArgument("transform: operand for %q must be numeric, got %s",
				ft.FieldPath, operand.Type)
		}
		ops++
	}
	if ft.AppendMissingElements != nil {
		ops++
	}
	if ft.RemoveAllFromArray != nil {
		ops++
	}
	if ops != 1 {
		return wire.InvalidArgument("transform for %q must set exactly one operation, got %d",
			ft.FieldPath, ops)
	}
	return nil
}

// applyTransform applies one field transform to the field map and returns
// the transform result. The caller validated the transform already.
func applyTransform(fields map[string]*value.Value, ft wire.FieldTransform, commitTime time.Time) *value.Value {
	segs, _ := parseFieldPath(ft.FieldPath)
	cur, _ := getField(fields, segs)

	var result *value.Value
	switch {
	case ft.SetToServerValue != "":
		result = value.Timestamp(commitTime)
	case ft.Increment != nil:
		result = increment(cur, ft.Increment)
	case ft.Maximum != nil:
		result = pickExtreme(cur, ft.Maximum, 1)
	case ft.Minimum != nil:
		result = pickExtreme(cur, ft.Minimum, -1)
	case ft.AppendMissingElements != nil:
		result = appendMissing(cur, ft.AppendMissingElements.Values)
	case ft.RemoveAllFromArray != nil:
		result = removeAll(cur, ft.RemoveAllFromArray.Values)
	}

	setField(fields, segs, result)
	return result.Clone()
}

// asNumber reinterprets the current value as a number, zero when missing
// or non-numeric.
func asNumber(cur *value.Value) *value.Value {
	if cur == nil || !cur.Type.IsNumeric() {
		return value.Integer(0)
	}
	return cur
}

// increment adds the operand to the current value. The result is an
// integer iff both operands are integers.
func increment(cur, operand *value.Value) *value.Value {
	base := asNumber(cur)
	if base.Type == value.TypeInteger && operand.Type == value.TypeInteger {
		return value.Integer(base.Int + operand.Int)
	}
	return value.Double(base.AsFloat() + operand.AsFloat())
}

// pickExtreme implements maximum (dir=1) and minimum (dir=-1). A missing
// or non-numeric current value acts as the identity, so the operand wins.
func pickExtreme(cur, operand *value.Value, dir int) *value.Value {
	if cur == nil || !cur.Type.IsNumeric() {
		return operand.Clone()
	}
	bothInt := cur.Type == value.TypeInteger && operand.Type == value.TypeInteger
	winner := cur
	if value.CompareNumbers(operand, cur) == dir {
		winner = operand
	}
	if bothInt {
		return value.Integer(winner.Int)
	}
	return value.Double(winner.AsFloat())
}

// asArray reinterprets the current value as an array, empty when missing
// or of another type.
func asArray(cur *value.Value) []*value.Value {
	if cur == nil || cur.Type != value.TypeArray {
		return nil
	}
	return cur.Array
}

// appendMissing unions elements into the array, preserving insertion
// order and skipping structural duplicates.
func appendMissing(cur *value.Value, xs []*value.Value) *value.Value {
	out := make([]*value.Value, 0)
	for _, e := range asArray(cur) {
		out = append(out, e.Clone())
	}
	for _, x := range xs {
		present := false
		for _, e := range out {
			if e.Equal(x) {
				present = true
				break
			}
		}
		if !present {
			out = append(out, x.Clone())
		}
	}
	return value.ArrayVal(out...)
}

// removeAll drops every element structurally equal to one of xs
func removeAll(cur *value.Value, xs []*value.Value) *value.Value {
	out := make([]*value.Value, 0)
	for _, e := range asArray(cur) {
		drop := false
		for _, x := range xs {
			if e.Equal(x) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, e.Clone())
		}
	}
	return value.ArrayVal(out...)
}
