// Package registry implements the node's catalog of data type descriptors.
//
// The registry is populated during a registration phase and then frozen. After
// Freeze it is read-only, so lookups from concurrent request handlers never
// observe a change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const logPrefix = "registry:registry"

var (
	ErrFrozen            = errors.New("registry is frozen")
	ErrInvalidDescriptor = errors.New("invalid data type descriptor")
	ErrIDCollision       = errors.New("data type id already registered")
	ErrNameCollision     = errors.New("data type name already registered")
)

// DescriptorSource supplies descriptors to register (catalog file, database).
type DescriptorSource interface {
	Descriptors(ctx context.Context) ([]datatype.Descriptor, error)
}

type typeKey struct {
	kind datatype.Kind
	id   datatype.ID
}

// Registry stores descriptors by (kind, id) and by full name.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	byKey  map[typeKey]datatype.Descriptor
	byName map[string]datatype.Descriptor
	// sorted by id, per kind
	byKind map[datatype.Kind][]datatype.Descriptor
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		byKey:  make(map[typeKey]datatype.Descriptor),
		byName: make(map[string]datatype.Descriptor),
		byKind: make(map[datatype.Kind][]datatype.Descriptor),
	}
}

// Register adds a descriptor. It fails once the registry is frozen, for invalid
// descriptors, and when the (kind, id) pair or the full name is taken.
func (r *Registry) Register(d datatype.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if existing, ok := r.byKey[typeKey{d.Kind, d.ID}]; ok {
		return fmt.Errorf("%w: %s id %d held by %s", ErrIDCollision, d.Kind, d.ID, existing.FullName)
	}
	if _, ok := r.byName[d.FullName]; ok {
		return fmt.Errorf("%w: %s", ErrNameCollision, d.FullName)
	}

	r.byKey[typeKey{d.Kind, d.ID}] = d
	r.byName[d.FullName] = d

	list := append(r.byKind[d.Kind], d)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	r.byKind[d.Kind] = list

	slog.Debug(fmt.Sprintf("%s - Registered %s", logPrefix, d))
	return nil
}

// LoadFrom registers every descriptor supplied by src and returns how many were added.
func (r *Registry) LoadFrom(ctx context.Context, src DescriptorSource) (int, error) {
	descs, err := src.Descriptors(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - failed to read descriptors: %w", logPrefix, err)
	}
	for i, d := range descs {
		if err := r.Register(d); err != nil {
			return i, fmt.Errorf("%s - failed to register %s: %w", logPrefix, d.FullName, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d data types", logPrefix, len(descs)))
	return len(descs), nil
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// IsFrozen reports whether Freeze has been called.
func (r *Registry) IsFrozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Find looks up a descriptor by kind and id.
func (r *Registry) Find(kind datatype.Kind, id datatype.ID) (datatype.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[typeKey{kind, id}]
	return d, ok
}

// FindByName looks up a descriptor by full name.
func (r *Registry) FindByName(name string) (datatype.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// ComputeAggregateSignature mixes the signatures of every registered type of kind
// whose id lies inside the mask's id space, in ascending id order. The mask bits
// do not gate which types contribute. Returns 0 when nothing is registered.
func (r *Registry) ComputeAggregateSignature(kind datatype.Kind, mask datatype.IDMask) datatype.Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sig datatype.Signature
	initialized := false
	for _, d := range r.byKind[kind] {
		if int(d.ID) >= mask.Len() {
			break
		}
		if initialized {
			sig.Extend(d.Signature)
		} else {
			sig = d.Signature
			initialized = true
		}
	}
	return sig
}

// Aggregate is ComputeAggregateSignature over the full id space of kind.
func (r *Registry) Aggregate(kind datatype.Kind) datatype.Signature {
	return r.ComputeAggregateSignature(kind, datatype.NewIDMaskForKind(kind))
}

// List returns the descriptors of kind sorted by id.
func (r *Registry) List(kind datatype.Kind) []datatype.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]datatype.Descriptor, len(r.byKind[kind]))
	copy(out, r.byKind[kind])
	return out
}

// KnownIDs returns a normalized mask with the registered ids of kind set.
func (r *Registry) KnownIDs(kind datatype.Kind) datatype.IDMask {
	m := datatype.NewIDMaskForKind(kind)
	for _, d := range r.List(kind) {
		m.Set(int(d.ID))
	}
	return m
}

// Count returns the number of descriptors of kind.
func (r *Registry) Count(kind datatype.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKind[kind])
}
