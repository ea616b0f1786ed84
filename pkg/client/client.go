// Package client queries a peer node's introspection services over COMMS.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/dispatcher"
	"github.com/morezero/datatype-introspection/pkg/introspection"
)

const logPrefix = "client:client"

// ErrRemote is returned when the peer answers with an error envelope.
var ErrRemote = errors.New("remote error")

// Client calls one peer's introspection subject.
type Client struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
	node    string
	seq     atomic.Uint64
}

// Params configures a Client.
type Params struct {
	Conn    *comms.Conn
	Subject string
	// Timeout bounds each request when ctx has no earlier deadline. Defaults to 5s.
	Timeout time.Duration
	// Node identifies the caller in the invocation context.
	Node string
}

// New creates a Client.
func New(params Params) *Client {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{nc: params.Conn, subject: params.Subject, timeout: timeout, node: params.Node}
}

// GetDataTypeInfo queries a type by kind and id.
func (c *Client) GetDataTypeInfo(ctx context.Context, kind datatype.Kind, id datatype.ID) (*introspection.GetDataTypeInfoResponse, error) {
	var out introspection.GetDataTypeInfoResponse
	err := c.call(ctx, introspection.ServiceGetDataTypeInfo, &introspection.GetDataTypeInfoRequest{Kind: kind, ID: id}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDataTypeInfoByName queries a type by full name.
func (c *Client) GetDataTypeInfoByName(ctx context.Context, name string) (*introspection.GetDataTypeInfoResponse, error) {
	var out introspection.GetDataTypeInfoResponse
	err := c.call(ctx, introspection.ServiceGetDataTypeInfo, &introspection.GetDataTypeInfoRequest{Name: name}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ComputeAggregateTypeSignature asks the peer for its aggregate over kind.
func (c *Client) ComputeAggregateTypeSignature(ctx context.Context, kind datatype.Kind, known datatype.IDMask) (*introspection.ComputeAggregateTypeSignatureResponse, error) {
	var out introspection.ComputeAggregateTypeSignatureResponse
	req := &introspection.ComputeAggregateTypeSignatureRequest{Kind: kind, KnownIDs: known}
	if err := c.call(ctx, introspection.ServiceComputeAggregateTypeSignature, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NotFound reports whether a GetDataTypeInfo response means "not found".
func NotFound(resp *introspection.GetDataTypeInfoResponse) bool {
	return resp == nil || !resp.Known()
}

type rawResponse struct {
	ID     string                  `json:"id"`
	Ok     bool                    `json:"ok"`
	Result json.RawMessage         `json:"result,omitempty"`
	Error  *dispatcher.ErrorDetail `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, service string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := commsutil.EncodePayload(params)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s params: %w", logPrefix, service, err)
	}

	req := &dispatcher.ServiceRequest{
		ID:      fmt.Sprintf("%s-%d", c.node, c.seq.Add(1)),
		Service: service,
		Params:  payload,
		Ctx:     &dispatcher.InvocationContext{Node: c.node, TimeoutMs: int(c.timeout / time.Millisecond)},
	}

	var resp rawResponse
	if err := commsutil.RequestJSON(ctx, c.nc, c.subject, req, &resp); err != nil {
		return fmt.Errorf("%s - %s: %w", logPrefix, service, err)
	}
	if !resp.Ok {
		if resp.Error == nil {
			return fmt.Errorf("%s - %s: %w: no error detail", logPrefix, service, ErrRemote)
		}
		return fmt.Errorf("%s - %s: %w: %s: %s", logPrefix, service, ErrRemote, resp.Error.Code, resp.Error.Message)
	}
	if err := commsutil.DecodePayload(resp.Result, result); err != nil {
		return fmt.Errorf("%s - failed to decode %s result: %w", logPrefix, service, err)
	}
	return nil
}
