package impex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mnohosten/flamestore/pkg/store"
)

// Export writes every document in name order, one JSON object per line,
// through the codec. It returns the number of documents written.
func Export(w io.Writer, s *store.Store, codec Codec) (int, error) {
	cw, err := codec.wrapWriter(w)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(cw)
	enc := json.NewEncoder(bw)
	count := 0
	err = s.ForEach(func(doc *store.Document) error {
		// Encode adds the newline that delimits records.
		if err := enc.Encode(doc.ToWire(nil)); err != nil {
			return fmt.Errorf("encode %s: %w", doc.Name, err)
		}
		count++
		return nil
	})
	if err != nil {
		cw.Close()
		return count, err
	}
	if err := bw.Flush(); err != nil {
		cw.Close()
		return count, err
	}
	if err := cw.Close(); err != nil {
		return count, fmt.Errorf("finish %s stream: %w", codec, err)
	}
	return count, nil
}
