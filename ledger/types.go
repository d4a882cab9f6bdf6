package ledger

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// DOCUMENT ADDRESSING
// =============================================================================

// Ref addresses one document: a collection name plus a document id.
type Ref struct {
	Collection string
	ID         string
}

// Doc is shorthand for Ref{Collection: collection, ID: id}.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// Document is a committed document as seen by a Backend.
// Version 0 is reserved for "absent".
type Document struct {
	Ref     Ref
	Body    []byte
	Version int64
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	if err := json.Unmarshal(d.Body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", d.Ref, err)
	}
	return nil
}

// =============================================================================
// MUTATIONS - Buffered writes applied on commit
// =============================================================================

type MutationKind int

const (
	MutationPut MutationKind = iota
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationPut:
		return "put"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is one buffered write. Body is nil for deletes.
type Mutation struct {
	Ref  Ref
	Kind MutationKind
	Body []byte
}
