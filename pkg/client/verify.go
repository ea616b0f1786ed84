package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

// LocalCatalog is the local side of a verification.
type LocalCatalog interface {
	KnownIDs(kind datatype.Kind) datatype.IDMask
	Aggregate(kind datatype.Kind) datatype.Signature
}

// VerifyResult compares the local and remote aggregates of one kind.
type VerifyResult struct {
	Kind   datatype.Kind      `json:"kind"`
	Local  datatype.Signature `json:"local"`
	Remote datatype.Signature `json:"remote"`
	Match  bool               `json:"match"`
}

// Verify sends the locally known ids of kind and compares the peer's aggregate
// signature with the local one.
func (c *Client) Verify(ctx context.Context, local LocalCatalog, kind datatype.Kind) (VerifyResult, error) {
	if !kind.IsValid() {
		return VerifyResult{}, fmt.Errorf("%s - invalid kind %d", logPrefix, uint8(kind))
	}

	resp, err := c.ComputeAggregateTypeSignature(ctx, kind, local.KnownIDs(kind))
	if err != nil {
		return VerifyResult{}, err
	}
	if resp.MutuallyKnownIDs.Len() != datatype.IDSpaceSize(kind) {
		// A peer that dropped the request answers with an empty response.
		return VerifyResult{}, fmt.Errorf("%s - peer returned a %d-bit mask for %s", logPrefix, resp.MutuallyKnownIDs.Len(), kind)
	}

	res := VerifyResult{
		Kind:   kind,
		Local:  local.Aggregate(kind),
		Remote: resp.AggregateSignature,
	}
	res.Match = res.Local == res.Remote
	if !res.Match {
		slog.Warn(fmt.Sprintf("%s - %s catalog mismatch: local %s remote %s", logPrefix, kind, res.Local, res.Remote))
	}
	return res, nil
}
