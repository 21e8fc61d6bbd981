package rules

import "strings"

// normalizeSegments splits a slash path, dropping leading, trailing and
// doubled slashes.
func normalizeSegments(path string) []string {
	parts := strings.Split(path, "/")
	segs := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// matchPrefix matches a template against the front of the path segments.
// It returns wildcard bindings and the number of segments consumed. A
// recursive wildcard in tail position consumes every remaining segment
// (at least one) and binds the joined remainder; anywhere else it
// degrades to a single-segment wildcard.
func matchPrefix(tmpl *PathTemplate, segs []string) (map[string]string, int, bool) {
	bindings := make(map[string]string)
	i := 0
	for pi, ps := range tmpl.Segments {
		switch ps.Kind {
		case SegRecursive:
			if pi == len(tmpl.Segments)-1 {
				if i >= len(segs) {
					return nil, 0, false
				}
				bindings[ps.Text] = strings.Join(segs[i:], "/")
				return bindings, len(segs), true
			}
			fallthrough
		case SegWildcard:
			if i >= len(segs) {
				return nil, 0, false
			}
			bindings[ps.Text] = segs[i]
			i++
		case SegLiteral:
			if i >= len(segs) || segs[i] != ps.Text {
				return nil, 0, false
			}
			i++
		case SegInterp:
			// Interpolations are an expression-context feature; in a
			// match pattern they never match.
			return nil, 0, false
		}
	}
	return bindings, i, true
}

// MatchPath matches a complete path against a pattern string and returns
// the wildcard bindings. The whole path must be consumed.
func MatchPath(pattern, path string) (map[string]string, bool) {
	tmpl, err := parsePathTemplate(normalizePattern(pattern), Pos{Line: 1, Column: 1})
	if err != nil {
		return nil, false
	}
	segs := normalizeSegments(path)
	bindings, consumed, ok := matchPrefix(tmpl, segs)
	if !ok || consumed != len(segs) {
		return nil, false
	}
	return bindings, true
}

// normalizePattern guarantees the leading slash parsePathTemplate expects
func normalizePattern(pattern string) string {
	if !strings.HasPrefix(pattern, "/") {
		return "/" + pattern
	}
	return pattern
}

// MatchCollectionGroup matches any document whose parent collection id
// equals collection, binding the document id.
func MatchCollectionGroup(collection, path string) (map[string]string, bool) {
	segs := normalizeSegments(path)
	if len(segs) < 2 || segs[len(segs)-2] != collection {
		return nil, false
	}
	return map[string]string{"document": segs[len(segs)-1]}, true
}
