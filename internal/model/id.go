package model

import "github.com/oklog/ulid/v2"

// NewID returns a new lexically sortable record ID.
func NewID() string {
	return ulid.Make().String()
}

// NewTransactionReference returns a TXN-<ULID> reference.
func NewTransactionReference() string {
	return "TXN-" + ulid.Make().String()
}
