package store

import (
	"fmt"
	"strings"

	"github.com/mnohosten/flamestore/pkg/value"
)

// parseFieldPath splits a dot-separated field path into segments.
// Backtick-quoted segments may contain dots.
func parseFieldPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	var segs []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '`':
			inQuote = !inQuote
		case c == '.' && !inQuote:
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quoted segment in field path %q", path)
	}
	segs = append(segs, cur.String())
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("empty segment in field path %q", path)
		}
	}
	return segs, nil
}

// getField resolves a field path against a field map, descending through
// nested map values.
func getField(fields map[string]*value.Value, segs []string) (*value.Value, bool) {
	for i, seg := range segs {
		v, ok := fields[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		if v.Type != value.TypeMap {
			return nil, false
		}
		fields = v.Map
	}
	return nil, false
}

// setField writes a value at a field path, creating intermediate maps.
// Non-map intermediates are replaced by maps.
func setField(fields map[string]*value.Value, segs []string, v *value.Value) {
	for i, seg := range segs {
		if i == len(segs)-1 {
			fields[seg] = v
			return
		}
		next, ok := fields[seg]
		if !ok || next.Type != value.TypeMap {
			next = value.MapVal(nil)
			fields[seg] = next
		}
		fields = next.Map
	}
}

// deleteField removes the value at a field path if present
func deleteField(fields map[string]*value.Value, segs []string) {
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(fields, seg)
			return
		}
		next, ok := fields[seg]
		if !ok || next.Type != value.TypeMap {
			return
		}
		fields = next.Map
	}
}

// applyMask projects a field map onto the given field paths. Paths that do
// not resolve are skipped. Unparseable paths are also skipped; masks are
// validated before the read path gets here.
func applyMask(fields map[string]*value.Value, paths []string) map[string]*value.Value {
	out := make(map[string]*value.Value)
	for _, p := range paths {
		segs, err := parseFieldPath(p)
		if err != nil {
			continue
		}
		v, ok := getField(fields, segs)
		if !ok {
			continue
		}
		setField(out, segs, v.Clone())
	}
	return out
}

// validateMask checks a document mask: it must name at least one parseable
// field path.
func validateMask(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("mask must name at least one field path")
	}
	for _, p := range paths {
		if _, err := parseFieldPath(p); err != nil {
			return err
		}
	}
	return nil
}
