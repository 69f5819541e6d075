package catalog

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by WriteIfVersion when the remote document
// changed since the supplied version was read.
var ErrVersionConflict = errors.New("catalog version conflict")

// VersionedStore is a compare-and-swap document store for the product list.
// Version is an opaque token tied to the exact document revision that was read.
type VersionedStore interface {
	// Read returns the full product list and the version token for it.
	Read(ctx context.Context) ([]Product, string, error)
	// WriteIfVersion commits the product list only if the remote still holds
	// expectedVersion. Returns the new version token on success.
	WriteIfVersion(ctx context.Context, products []Product, expectedVersion, message string) (string, error)
}
