// Package introspection answers peers' questions about the data types this node
// knows: per-type info with a usage-status mask, and per-kind aggregate signatures.
//
// Both handlers fail silently. An invalid kind or an unknown type leaves the
// response holding only what was echoed from the request, and the dispatch layer
// transmits it as is. Peers read a response without FlagKnown as "not found".
package introspection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/dispatcher"
)

const logPrefix = "introspection:provider"

// TypeRegistry is the read accessor onto the node's frozen type catalog.
type TypeRegistry interface {
	Find(kind datatype.Kind, id datatype.ID) (datatype.Descriptor, bool)
	FindByName(name string) (datatype.Descriptor, bool)
	ComputeAggregateSignature(kind datatype.Kind, mask datatype.IDMask) datatype.Signature
}

// StatusSource reports which data type ids are in active use on this node.
type StatusSource interface {
	HasServer(id datatype.ID) bool
	HasSubscriber(id datatype.ID) bool
	HasPublisher(id datatype.ID) bool
}

// HandlerRegistrar binds service handlers to the transport.
type HandlerRegistrar interface {
	RegisterHandler(service string, h dispatcher.Handler) error
	UnregisterHandler(service string)
}

// Provider serves GetDataTypeInfo and ComputeAggregateTypeSignature.
type Provider struct {
	types     TypeRegistry
	status    StatusSource
	registrar HandlerRegistrar

	mu sync.Mutex
	// services this provider bound, in binding order
	bound []string
}

// NewProviderParams holds the collaborators of a Provider. They are shared with
// the node and must outlive it.
type NewProviderParams struct {
	Types     TypeRegistry
	Status    StatusSource
	Registrar HandlerRegistrar
}

// NewProvider creates a Provider. Handlers are not bound until Start.
func NewProvider(params NewProviderParams) *Provider {
	return &Provider{
		types:     params.Types,
		status:    params.Status,
		registrar: params.Registrar,
	}
}

// Start binds both handlers. If either binding fails, the bindings made by this
// call are undone; handlers bound by anyone else are left in place.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.bound) > 0 {
		return fmt.Errorf("%s - already started", logPrefix)
	}

	services := []struct {
		name    string
		handler dispatcher.Handler
	}{
		{ServiceGetDataTypeInfo, dispatcher.Bind(p.GetDataTypeInfo)},
		{ServiceComputeAggregateTypeSignature, dispatcher.Bind(p.ComputeAggregateTypeSignature)},
	}
	for _, svc := range services {
		if err := p.registrar.RegisterHandler(svc.name, svc.handler); err != nil {
			p.unbindLocked()
			return fmt.Errorf("%s - failed to register %s: %w", logPrefix, svc.name, err)
		}
		p.bound = append(p.bound, svc.name)
	}
	slog.Info(fmt.Sprintf("%s - Started", logPrefix))
	return nil
}

// Stop unbinds the handlers bound by Start. It is a no-op if Start did not succeed.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unbindLocked()
}

func (p *Provider) unbindLocked() {
	for i := len(p.bound) - 1; i >= 0; i-- {
		p.registrar.UnregisterHandler(p.bound[i])
	}
	p.bound = nil
}

// ComputeAggregateTypeSignature echoes the caller's mask normalized to the kind's
// id space and fills the aggregate signature of every registered type of that kind.
func (p *Provider) ComputeAggregateTypeSignature(req *ComputeAggregateTypeSignatureRequest, resp *ComputeAggregateTypeSignatureResponse) {
	if !req.Kind.IsValid() {
		slog.Debug(fmt.Sprintf("%s - ComputeAggregateTypeSignature: invalid kind %d", logPrefix, uint8(req.Kind)))
		return
	}

	resp.MutuallyKnownIDs = req.KnownIDs.Normalized(req.Kind)
	resp.AggregateSignature = p.types.ComputeAggregateSignature(req.Kind, resp.MutuallyKnownIDs)
}

// GetDataTypeInfo describes one data type, looked up by name or by (kind, id).
func (p *Provider) GetDataTypeInfo(req *GetDataTypeInfoRequest, resp *GetDataTypeInfoResponse) {
	var (
		desc  datatype.Descriptor
		found bool
	)

	if req.Name == "" {
		resp.ID = req.ID
		resp.Kind = req.Kind

		if !req.Kind.IsValid() {
			slog.Debug(fmt.Sprintf("%s - GetDataTypeInfo: invalid kind %d", logPrefix, uint8(req.Kind)))
			return
		}
		if desc, found = p.types.Find(req.Kind, req.ID); !found {
			slog.Debug(fmt.Sprintf("%s - GetDataTypeInfo: no %s with id %d", logPrefix, req.Kind, req.ID))
			return
		}
	} else {
		resp.Name = req.Name

		if desc, found = p.types.FindByName(req.Name); !found {
			slog.Debug(fmt.Sprintf("%s - GetDataTypeInfo: no type named %q", logPrefix, req.Name))
			return
		}
	}

	resp.Signature = desc.Signature
	resp.ID = desc.ID
	resp.Kind = desc.Kind
	resp.Name = desc.FullName
	resp.Mask = p.usage(desc)
}

func (p *Provider) usage(desc datatype.Descriptor) uint8 {
	mask := FlagKnown
	switch desc.Kind {
	case datatype.KindService:
		if p.status.HasServer(desc.ID) {
			mask |= FlagServing
		}
	case datatype.KindMessage:
		if p.status.HasSubscriber(desc.ID) {
			mask |= FlagSubscribed
		}
		if p.status.HasPublisher(desc.ID) {
			mask |= FlagPublishing
		}
	default:
		invariantViolated("registry holds %s with unknown kind %d", desc.FullName, uint8(desc.Kind))
	}
	return mask
}
