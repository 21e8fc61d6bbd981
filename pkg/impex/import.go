package impex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// Import reads a JSONL export through the codec and inserts every
// document into the store, replacing documents with the same name. It
// returns the number of documents imported.
func Import(r io.Reader, s *store.Store, codec Codec) (int, error) {
	cr, err := codec.wrapReader(r)
	if err != nil {
		return 0, err
	}
	defer cr.Close()

	dec := json.NewDecoder(cr)
	count := 0
	for {
		var wd wire.Document
		if err := dec.Decode(&wd); err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("record %d: %w", count+1, err)
		}
		doc, err := fromWire(&wd)
		if err != nil {
			return count, fmt.Errorf("record %d: %w", count+1, err)
		}
		s.Put(doc)
		count++
	}
}

func fromWire(wd *wire.Document) (*store.Document, error) {
	if _, err := docpath.Parse(wd.Name); err != nil {
		return nil, fmt.Errorf("document name %q: %w", wd.Name, err)
	}
	createTime, err := value.ParseTime(wd.CreateTime)
	if err != nil {
		return nil, fmt.Errorf("createTime: %w", err)
	}
	updateTime, err := value.ParseTime(wd.UpdateTime)
	if err != nil {
		return nil, fmt.Errorf("updateTime: %w", err)
	}
	fields := wd.Fields
	if fields == nil {
		fields = map[string]*value.Value{}
	}
	return &store.Document{
		Name:       wd.Name,
		Fields:     fields,
		CreateTime: createTime,
		UpdateTime: updateTime,
	}, nil
}
