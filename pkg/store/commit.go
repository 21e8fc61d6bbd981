package store

import (
	"errors"
	"time"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// MaxWritesPerCommit caps the number of writes in one commit
const MaxWritesPerCommit = 500

type writeKind int

const (
	writeUpdate writeKind = iota
	writeDelete
	writeTransform
)

type validatedWrite struct {
	w    *wire.Write
	kind writeKind
	path string
}

// pathError maps path codec failures onto the response taxonomy
func pathError(err error) error {
	if errors.Is(err, docpath.ErrUnknownDatabase) {
		return wire.NotFound("%v", err)
	}
	return wire.InvalidArgument("%v", err)
}

// parseDocName parses and gates a document name
func parseDocName(name string) (string, error) {
	p, err := docpath.Parse(name)
	if err != nil {
		return "", pathError(err)
	}
	if err := p.CheckDatabase(); err != nil {
		return "", pathError(err)
	}
	return p.String(), nil
}

// validateWrite checks one write's shape. Exactly one of update, delete
// and transform must be present; masks and update transforms only apply
// to updates.
func validateWrite(w *wire.Write) (*validatedWrite, error) {
	vw := &validatedWrite{w: w}
	set := 0
	var name string
	if w.Update != nil {
		vw.kind = writeUpdate
		name = w.Update.Name
		set++
	}
	if w.Delete != "" {
		vw.kind = writeDelete
		name = w.Delete
		set++
	}
	if w.Transform != nil {
		vw.kind = writeTransform
		name = w.Transform.Document
		set++
	}
	if set != 1 {
		return nil, wire.InvalidArgument("write must set exactly one of update, delete or transform")
	}

	path, err := parseDocName(name)
	if err != nil {
		return nil, err
	}
	vw.path = path

	if w.UpdateMask != nil {
		if vw.kind != writeUpdate {
			return nil, wire.InvalidArgument("updateMask requires an update write")
		}
		if err := validateMask(w.UpdateMask.FieldPaths); err != nil {
			return nil, wire.InvalidArgument("updateMask: %v", err)
		}
	}
	if len(w.UpdateTransforms) > 0 && vw.kind != writeUpdate {
		return nil, wire.InvalidArgument("updateTransforms require an update write")
	}
	for i := range w.UpdateTransforms {
		if err := validateTransform(&w.UpdateTransforms[i]); err != nil {
			return nil, err
		}
	}
	if vw.kind == writeTransform {
		if len(w.Transform.FieldTransforms) == 0 {
			return nil, wire.InvalidArgument("transform write must carry at least one field transform")
		}
		for i := range w.Transform.FieldTransforms {
			if err := validateTransform(&w.Transform.FieldTransforms[i]); err != nil {
				return nil, err
			}
		}
	}
	return vw, validatePrecondition(w.CurrentDocument)
}

// Commit runs the full commit pipeline under one hold of the engine lock:
// validate, transaction and conflict checks, precondition pass, then the
// apply pass with a single commit timestamp. Either every write applies or
// the store is untouched.
func (s *Store) Commit(req *wire.CommitRequest) (*wire.CommitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Writes) > MaxWritesPerCommit {
		return nil, wire.InvalidArgument("too many writes: %d (limit %d)",
			len(req.Writes), MaxWritesPerCommit)
	}

	writes := make([]*validatedWrite, 0, len(req.Writes))
	for _, w := range req.Writes {
		if w == nil {
			return nil, wire.InvalidArgument("write must not be null")
		}
		vw, err := validateWrite(w)
		if err != nil {
			return nil, err
		}
		writes = append(writes, vw)
	}

	var txn *Transaction
	if req.Transaction != "" {
		var err error
		txn, err = s.lookupActiveTxn(req.Transaction)
		if err != nil {
			return nil, wire.InvalidArgument("%v", err)
		}
		if txn.ReadOnly {
			return nil, wire.InvalidArgument("%v", ErrReadOnlyTransaction)
		}
		if err := s.checkConflicts(txn); err != nil {
			return nil, wire.Aborted("%v", err)
		}
	}

	// Precondition pass: any failure aborts the batch before mutation.
	for _, vw := range writes {
		if err := checkPrecondition(vw.w.CurrentDocument, vw.path, s.docs[vw.path]); err != nil {
			return nil, err
		}
	}

	commitTime := s.nextCommitTime()

	results := make([]*wire.WriteResult, 0, len(writes))
	for _, vw := range writes {
		res := &wire.WriteResult{UpdateTime: value.FormatTime(commitTime)}
		existing := s.docs[vw.path]

		switch vw.kind {
		case writeDelete:
			delete(s.docs, vw.path)

		case writeUpdate:
			var fields map[string]*value.Value
			if vw.w.UpdateMask != nil {
				fields = make(map[string]*value.Value)
				if existing != nil {
					fields = value.CloneFields(existing.Fields)
				}
				for _, p := range vw.w.UpdateMask.FieldPaths {
					segs, _ := parseFieldPath(p)
					if v, ok := getField(vw.w.Update.Fields, segs); ok {
						setField(fields, segs, v.Clone())
					} else {
						deleteField(fields, segs)
					}
				}
			} else {
				fields = value.CloneFields(vw.w.Update.Fields)
				if fields == nil {
					fields = make(map[string]*value.Value)
				}
			}
			for _, ft := range vw.w.UpdateTransforms {
				res.TransformResults = append(res.TransformResults,
					applyTransform(fields, ft, commitTime))
			}
			s.docs[vw.path] = &Document{
				Name:       vw.path,
				Fields:     fields,
				CreateTime: createTimeFor(existing, commitTime),
				UpdateTime: commitTime,
			}

		case writeTransform:
			fields := make(map[string]*value.Value)
			if existing != nil {
				fields = value.CloneFields(existing.Fields)
			}
			for _, ft := range vw.w.Transform.FieldTransforms {
				res.TransformResults = append(res.TransformResults,
					applyTransform(fields, ft, commitTime))
			}
			s.docs[vw.path] = &Document{
				Name:       vw.path,
				Fields:     fields,
				CreateTime: createTimeFor(existing, commitTime),
				UpdateTime: commitTime,
			}
		}
		results = append(results, res)
	}

	if txn != nil {
		txn.State = TxnCommitted
	}

	return &wire.CommitResponse{
		WriteResults: results,
		CommitTime:   value.FormatTime(commitTime),
	}, nil
}

// createTimeFor keeps the original create time across rewrites; a path
// recreated after delete gets a fresh one.
func createTimeFor(existing *Document, commitTime time.Time) time.Time {
	if existing != nil {
		return existing.CreateTime
	}
	return commitTime
}
