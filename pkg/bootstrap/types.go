// Package bootstrap loads the data type catalog a node registers at startup.
package bootstrap

import "github.com/morezero/datatype-introspection/pkg/datatype"

// CatalogEntry is one data type in a catalog file. Signature may be given
// explicitly, computed from Definition, or both (they must then agree).
type CatalogEntry struct {
	Kind       string              `json:"kind"`
	ID         datatype.ID         `json:"id"`
	Name       string              `json:"name"`
	Signature  *datatype.Signature `json:"signature,omitempty"`
	Definition string              `json:"definition,omitempty"`
}

// Catalog is the root of a catalog file.
type Catalog struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	Types       []CatalogEntry `json:"types"`
}
