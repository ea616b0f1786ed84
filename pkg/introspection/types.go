package introspection

import "github.com/morezero/datatype-introspection/pkg/datatype"

// Service data type names bound by the Provider.
const (
	ServiceGetDataTypeInfo               = "protocol.GetDataTypeInfo"
	ServiceComputeAggregateTypeSignature = "protocol.ComputeAggregateTypeSignature"
)

// Usage-status bits of GetDataTypeInfoResponse.Mask.
const (
	FlagKnown      uint8 = 1
	FlagSubscribed uint8 = 2
	FlagPublishing uint8 = 4
	FlagServing    uint8 = 8
)

type ComputeAggregateTypeSignatureRequest struct {
	Kind     datatype.Kind   `json:"kind"`
	KnownIDs datatype.IDMask `json:"known_ids"`
}

type ComputeAggregateTypeSignatureResponse struct {
	AggregateSignature datatype.Signature `json:"aggregate_signature"`
	MutuallyKnownIDs   datatype.IDMask    `json:"mutually_known_ids"`
}

// GetDataTypeInfoRequest queries by Name when it is set, by (Kind, ID) otherwise.
type GetDataTypeInfoRequest struct {
	ID   datatype.ID   `json:"id"`
	Kind datatype.Kind `json:"kind"`
	Name string        `json:"name,omitempty"`
}

type GetDataTypeInfoResponse struct {
	Signature datatype.Signature `json:"signature"`
	ID        datatype.ID        `json:"id"`
	Kind      datatype.Kind      `json:"kind"`
	Mask      uint8              `json:"mask"`
	Name      string             `json:"name"`
}

// Known reports whether the queried type was found.
func (r *GetDataTypeInfoResponse) Known() bool {
	return r.Mask&FlagKnown != 0
}
