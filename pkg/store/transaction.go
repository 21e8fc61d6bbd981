package store

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mnohosten/flamestore/pkg/wire"
)

// TxnState represents the lifecycle state of a transaction
type TxnState int

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnRolledBack
)

// String returns the string representation of the state
func (s TxnState) String() string {
	switch s {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnRolledBack:
		return "rolledBack"
	default:
		return "unknown"
	}
}

// SnapshotEntry records what a transaction observed on its first read of a
// path: whether the document existed, its update time, and the document
// itself so later reads stay consistent.
type SnapshotEntry struct {
	Exists     bool
	UpdateTime time.Time
	Doc        *Document
}

// Transaction is an optimistic-concurrency transaction. All access is
// serialized by the store's engine lock.
type Transaction struct {
	ID        string
	ReadOnly  bool
	StartTime time.Time
	LastUsed  time.Time
	State     TxnState
	Snapshot  map[string]SnapshotEntry
}

// newTransactionID returns 32 hex characters from 128 random bits
func newTransactionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// BeginTransaction creates a new transaction. Options default to
// read-write.
func (s *Store) BeginTransaction(opts *wire.TransactionOptions) *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(opts)
}

func (s *Store) beginLocked(opts *wire.TransactionOptions) *Transaction {
	now := s.now()
	txn := &Transaction{
		ID:        newTransactionID(),
		ReadOnly:  opts != nil && opts.ReadOnly != nil,
		StartTime: now,
		LastUsed:  now,
		State:     TxnActive,
		Snapshot:  make(map[string]SnapshotEntry),
	}
	s.txns[txn.ID] = txn
	return txn
}

// lookupActiveTxn resolves a transaction id to an active transaction.
// Expired transactions are dropped and reported as unknown; terminal ones
// keep their record until swept so the caller gets a precise message.
func (s *Store) lookupActiveTxn(id string) (*Transaction, error) {
	txn, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTransactionNotFound, id)
	}
	if txn.State == TxnActive && s.now().Sub(txn.LastUsed) > s.idleTimeout {
		delete(s.txns, id)
		return nil, fmt.Errorf("%w: %q", ErrTransactionNotFound, id)
	}
	if txn.State != TxnActive {
		return nil, fmt.Errorf("%w: %q is %s", ErrTransactionFinished, id, txn.State)
	}
	txn.LastUsed = s.now()
	return txn, nil
}

// Rollback marks an active transaction rolled back
func (s *Store) Rollback(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.lookupActiveTxn(id)
	if err != nil {
		return err
	}
	txn.State = TxnRolledBack
	return nil
}

// readInTxn reads a path through the transaction's snapshot, caching the
// first read. Callers hold the engine lock.
func (s *Store) readInTxn(txn *Transaction, path string) *Document {
	if entry, ok := txn.Snapshot[path]; ok {
		return entry.Doc
	}
	entry := SnapshotEntry{}
	if doc, ok := s.docs[path]; ok {
		entry.Exists = true
		entry.UpdateTime = doc.UpdateTime
		entry.Doc = doc.Clone()
	}
	txn.Snapshot[path] = entry
	return entry.Doc
}

// checkConflicts compares the snapshot against current store state. Any
// divergence means another commit touched a path this transaction read.
func (s *Store) checkConflicts(txn *Transaction) error {
	for path, entry := range txn.Snapshot {
		cur, ok := s.docs[path]
		if ok != entry.Exists {
			return fmt.Errorf("document %q changed since it was read", path)
		}
		if ok && !cur.UpdateTime.Equal(entry.UpdateTime) {
			return fmt.Errorf("document %q changed since it was read", path)
		}
	}
	return nil
}

// SweepExpired removes transactions idle past the timeout along with
// terminal records. Returns the number removed.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, txn := range s.txns {
		if txn.State != TxnActive || now.Sub(txn.LastUsed) > s.idleTimeout {
			delete(s.txns, id)
			removed++
		}
	}
	return removed
}

// ActiveTransactions returns the number of live transactions
func (s *Store) ActiveTransactions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, txn := range s.txns {
		if txn.State == TxnActive {
			n++
		}
	}
	return n
}
