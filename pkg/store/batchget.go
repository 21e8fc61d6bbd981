package store

import (
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// MaxBatchGetDocuments caps the number of documents in one batchGet
const MaxBatchGetDocuments = 100

// BatchGet reads a batch of documents at a single read time, in request
// order. Inside a transaction reads go through the snapshot, so repeated
// reads of a path are consistent. With newTransaction a transaction is
// begun and its id echoed in every entry.
func (s *Store) BatchGet(req *wire.BatchGetRequest) ([]*wire.BatchGetResponseEntry, error) {
	if len(req.Documents) == 0 {
		return nil, wire.InvalidArgument("documents must name at least one document")
	}
	if len(req.Documents) > MaxBatchGetDocuments {
		return nil, wire.InvalidArgument("too many documents: %d (limit %d)",
			len(req.Documents), MaxBatchGetDocuments)
	}
	if req.Transaction != "" && req.NewTransaction != nil {
		return nil, wire.InvalidArgument("transaction and newTransaction are mutually exclusive")
	}
	if req.Mask != nil {
		if err := validateMask(req.Mask.FieldPaths); err != nil {
			return nil, wire.InvalidArgument("mask: %v", err)
		}
	}

	paths := make([]string, 0, len(req.Documents))
	for _, name := range req.Documents {
		path, err := parseDocName(name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var txn *Transaction
	echoTxn := ""
	switch {
	case req.NewTransaction != nil:
		txn = s.beginLocked(req.NewTransaction)
		echoTxn = txn.ID
	case req.Transaction != "":
		var err error
		txn, err = s.lookupActiveTxn(req.Transaction)
		if err != nil {
			return nil, wire.InvalidArgument("%v", err)
		}
	}

	readTime := value.FormatTime(s.now().UTC())

	entries := make([]*wire.BatchGetResponseEntry, 0, len(paths))
	for _, path := range paths {
		var doc *Document
		if txn != nil {
			doc = s.readInTxn(txn, path)
		} else if cur, ok := s.docs[path]; ok {
			doc = cur
		}

		entry := &wire.BatchGetResponseEntry{
			ReadTime:    readTime,
			Transaction: echoTxn,
		}
		if doc != nil {
			entry.Found = doc.ToWire(req.Mask)
		} else {
			entry.Missing = path
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
