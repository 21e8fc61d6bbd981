// Package store implements the in-memory document store, transaction
// manager and commit coordinator of the emulator. All state is guarded by
// a single engine lock; commits hold it for their whole critical section
// so no interleaving is observable.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long an unused transaction stays valid
const DefaultIdleTimeout = 5 * time.Minute

// Store owns all documents and transactions. Documents are keyed by their
// canonical name.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]*Document
	txns        map[string]*Transaction
	lastCommit  time.Time
	idleTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock injects the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIdleTimeout overrides the transaction idle timeout
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.idleTimeout = d }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]*Document),
		txns:        make(map[string]*Transaction),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the document at path
func (s *Store) Get(path string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Exists reports whether a document exists at path
func (s *Store) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[path]
	return ok
}

// Len returns the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear removes every document and transaction. Used by the emulator's
// reset endpoint between test runs.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]*Document)
	s.txns = make(map[string]*Transaction)
}

// ForEach visits a copy of every document in lexicographic name order
func (s *Store) ForEach(fn func(*Document) error) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	docs := make([]*Document, 0, len(names))
	for _, name := range names {
		docs = append(docs, s.docs[name].Clone())
	}
	s.mu.RUnlock()

	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// Put inserts a document verbatim, used by the importer. The name must be
// canonical; times are taken from the document.
func (s *Store) Put(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.Name] = doc.Clone()
	if doc.UpdateTime.After(s.lastCommit) {
		s.lastCommit = doc.UpdateTime
	}
}

// ListCollection returns copies of the documents directly inside the
// collection named by prefix (a document-root-relative or absolute name
// ending in the collection id), shallow only.
func (s *Store) ListCollection(prefix string) []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []*Document
	for name, doc := range s.docs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if strings.Contains(rest, "/") {
			continue // nested subcollection document
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// nextCommitTime picks a commit timestamp strictly after every previous
// one: max(now, last + 1µs). Callers hold the engine lock.
func (s *Store) nextCommitTime() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastCommit) {
		t = s.lastCommit.Add(time.Microsecond)
	}
	s.lastCommit = t
	return t
}
