package store

import "errors"

var (
	// ErrTransactionNotFound is returned when a transaction id is unknown
	// or has expired
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionFinished is returned when a terminal transaction is
	// referenced again
	ErrTransactionFinished = errors.New("transaction already finished")

	// ErrReadOnlyTransaction is returned when writes are attempted under a
	// read-only transaction
	ErrReadOnlyTransaction = errors.New("transaction is read-only")
)
