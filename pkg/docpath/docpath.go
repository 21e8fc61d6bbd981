// Package docpath parses and builds canonical Firestore document names of
// the form projects/{P}/databases/{D}/documents/{coll}/{id}/...
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultDatabase is the only database name the emulator serves
const DefaultDatabase = "(default)"

var (
	// ErrInvalidPath is returned when a document name is malformed
	ErrInvalidPath = errors.New("invalid document path")

	// ErrUnknownDatabase is returned for any database other than the default
	ErrUnknownDatabase = errors.New("unknown database")
)

// Path is a parsed document name. Segments holds the part after
// "documents/" and always has an even length of at least two.
type Path struct {
	Project  string
	Database string
	Segments []string
}

// Parse parses a full document name
func Parse(name string) (*Path, error) {
	parts := strings.Split(name, "/")
	if len(parts) < 6 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	if parts[0] != "projects" || parts[2] != "databases" || parts[4] != "documents" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	p := &Path{
		Project:  parts[1],
		Database: parts[3],
		Segments: parts[5:],
	}
	if p.Project == "" || p.Database == "" {
		return nil, fmt.Errorf("%w: empty project or database in %q", ErrInvalidPath, name)
	}
	if len(p.Segments)%2 != 0 {
		return nil, fmt.Errorf("%w: %q does not name a document", ErrInvalidPath, name)
	}
	for _, seg := range p.Segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, name)
		}
	}
	return p, nil
}

// ParseRoot parses a database root resource name,
// projects/{P}/databases/{D} with an optional /documents suffix.
func ParseRoot(name string) (project, database string, err error) {
	parts := strings.Split(strings.TrimSuffix(name, "/documents"), "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "databases" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return parts[1], parts[3], nil
}

// Build constructs a document name from its parts
func Build(project, database string, segments ...string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s",
		project, database, strings.Join(segments, "/"))
}

// String returns the canonical document name
func (p *Path) String() string {
	return Build(p.Project, p.Database, p.Segments...)
}

// DocumentID returns the last path segment
func (p *Path) DocumentID() string {
	return p.Segments[len(p.Segments)-1]
}

// Collection returns the collection id the document belongs to, the
// second-to-last segment.
func (p *Path) Collection() string {
	return p.Segments[len(p.Segments)-2]
}

// RelativePath returns the segments after "documents/" joined with slashes
func (p *Path) RelativePath() string {
	return strings.Join(p.Segments, "/")
}

// IsDefaultDatabase reports whether the path addresses the default database
func (p *Path) IsDefaultDatabase() bool {
	return p.Database == DefaultDatabase
}

// CheckDatabase returns ErrUnknownDatabase unless the path addresses the
// default database.
func (p *Path) CheckDatabase() error {
	if !p.IsDefaultDatabase() {
		return fmt.Errorf("%w: %q", ErrUnknownDatabase, p.Database)
	}
	return nil
}
