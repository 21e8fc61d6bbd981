package store

import (
	"time"

	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// Document is a stored document: its canonical name, fields and times
type Document struct {
	Name       string
	Fields     map[string]*value.Value
	CreateTime time.Time
	UpdateTime time.Time
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		Name:       d.Name,
		Fields:     value.CloneFields(d.Fields),
		CreateTime: d.CreateTime,
		UpdateTime: d.UpdateTime,
	}
}

// ToWire converts the document to its REST representation, projecting
// fields through the optional mask.
func (d *Document) ToWire(mask *wire.DocumentMask) *wire.Document {
	fields := d.Fields
	if mask != nil {
		fields = applyMask(d.Fields, mask.FieldPaths)
	}
	return &wire.Document{
		Name:       d.Name,
		Fields:     value.CloneFields(fields),
		CreateTime: value.FormatTime(d.CreateTime),
		UpdateTime: value.FormatTime(d.UpdateTime),
	}
}
