package db

import (
	"time"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

// DataTypeRow represents a row in the data_types table.
type DataTypeRow struct {
	Kind       datatype.Kind
	ID         datatype.ID
	FullName   string
	Signature  datatype.Signature
	Definition *string
	Created    time.Time
	Modified   time.Time
}

// Descriptor returns the registry view of the row.
func (r DataTypeRow) Descriptor() datatype.Descriptor {
	return datatype.Descriptor{Kind: r.Kind, ID: r.ID, FullName: r.FullName, Signature: r.Signature}
}
