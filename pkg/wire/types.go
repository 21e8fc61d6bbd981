// Package wire defines the REST payload schema shared by the document
// engine and the HTTP handlers, mirroring the production API.
package wire

import (
	"github.com/mnohosten/flamestore/pkg/value"
)

// Document is a document resource on the wire
type Document struct {
	Name       string                  `json:"name"`
	Fields     map[string]*value.Value `json:"fields,omitempty"`
	CreateTime string                  `json:"createTime,omitempty"`
	UpdateTime string                  `json:"updateTime,omitempty"`
}

// DocumentMask selects a set of dot-separated field paths
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// Precondition gates a write on the current state of the target document.
// Exactly one of Exists or UpdateTime may be set.
type Precondition struct {
	Exists     *bool   `json:"exists,omitempty"`
	UpdateTime *string `json:"updateTime,omitempty"`
}

// ArrayValue wraps the element list of array-typed transform operands
type ArrayValue struct {
	Values []*value.Value `json:"values"`
}

// ServerValueRequestTime is the only supported setToServerValue variant
const ServerValueRequestTime = "REQUEST_TIME"

// FieldTransform is a single server-side field operation. Exactly one of
// the operation fields is set.
type FieldTransform struct {
	FieldPath             string       `json:"fieldPath"`
	SetToServerValue      string       `json:"setToServerValue,omitempty"`
	Increment             *value.Value `json:"increment,omitempty"`
	Maximum               *value.Value `json:"maximum,omitempty"`
	Minimum               *value.Value `json:"minimum,omitempty"`
	AppendMissingElements *ArrayValue  `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *ArrayValue  `json:"removeAllFromArray,omitempty"`
}

// DocumentTransform applies a list of field transforms to one document
type DocumentTransform struct {
	Document        string           `json:"document"`
	FieldTransforms []FieldTransform `json:"fieldTransforms"`
}

// Write is one operation of a commit: update, delete or transform
type Write struct {
	Update           *Document          `json:"update,omitempty"`
	Delete           string             `json:"delete,omitempty"`
	Transform        *DocumentTransform `json:"transform,omitempty"`
	UpdateMask       *DocumentMask      `json:"updateMask,omitempty"`
	UpdateTransforms []FieldTransform   `json:"updateTransforms,omitempty"`
	CurrentDocument  *Precondition      `json:"currentDocument,omitempty"`
}

// WriteResult reports the outcome of one write, index-aligned with the
// request's writes.
type WriteResult struct {
	UpdateTime       string         `json:"updateTime"`
	TransformResults []*value.Value `json:"transformResults,omitempty"`
}

// CommitRequest is the body of documents:commit
type CommitRequest struct {
	Writes      []*Write `json:"writes"`
	Transaction string   `json:"transaction,omitempty"`
}

// CommitResponse is the reply of documents:commit
type CommitResponse struct {
	WriteResults []*WriteResult `json:"writeResults"`
	CommitTime   string         `json:"commitTime"`
}

// TransactionOptions selects the mode of a new transaction
type TransactionOptions struct {
	ReadOnly  *ReadOnlyOptions  `json:"readOnly,omitempty"`
	ReadWrite *ReadWriteOptions `json:"readWrite,omitempty"`
}

// ReadOnlyOptions marks a transaction read-only
type ReadOnlyOptions struct {
	ReadTime string `json:"readTime,omitempty"`
}

// ReadWriteOptions marks a transaction read-write
type ReadWriteOptions struct {
	RetryTransaction string `json:"retryTransaction,omitempty"`
}

// BeginTransactionRequest is the body of documents:beginTransaction
type BeginTransactionRequest struct {
	Options *TransactionOptions `json:"options,omitempty"`
}

// BeginTransactionResponse carries the new transaction id
type BeginTransactionResponse struct {
	Transaction string `json:"transaction"`
}

// RollbackRequest is the body of documents:rollback
type RollbackRequest struct {
	Transaction string `json:"transaction"`
}

// BatchGetRequest is the body of documents:batchGet
type BatchGetRequest struct {
	Documents      []string            `json:"documents"`
	Mask           *DocumentMask       `json:"mask,omitempty"`
	Transaction    string              `json:"transaction,omitempty"`
	NewTransaction *TransactionOptions `json:"newTransaction,omitempty"`
}

// BatchGetResponseEntry is one entry of the batchGet reply. Exactly one of
// Found and Missing is set.
type BatchGetResponseEntry struct {
	Found       *Document `json:"found,omitempty"`
	Missing     string    `json:"missing,omitempty"`
	Transaction string    `json:"transaction,omitempty"`
	ReadTime    string    `json:"readTime"`
}
