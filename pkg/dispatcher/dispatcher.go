package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const logPrefix = "dispatcher:dispatch"

var (
	ErrUnknownService = errors.New("service data type is not registered")
	ErrNotService     = errors.New("data type is not a service")
	ErrHandlerExists  = errors.New("service handler already registered")
)

// TypeLookup resolves service names to registered descriptors.
type TypeLookup interface {
	FindByName(name string) (datatype.Descriptor, bool)
}

// Handler decodes params, runs a service and returns the result to transmit.
// An error means the params could not be decoded.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Bind adapts a (request, response) callback into a Handler. The callback gets a
// zeroed response; whatever it wrote before returning is transmitted.
func Bind[Req, Resp any](fn func(req *Req, resp *Resp)) Handler {
	return func(_ context.Context, params json.RawMessage) (interface{}, error) {
		var req Req
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
		}
		var resp Resp
		fn(&req, &resp)
		return &resp, nil
	}
}

type binding struct {
	desc    datatype.Descriptor
	handler Handler
}

// Dispatcher routes service requests to bound handlers and answers usage-status
// queries for data type ids.
type Dispatcher struct {
	types TypeLookup

	mu          sync.RWMutex
	handlers    map[string]binding
	servers     map[datatype.ID]string
	subscribers map[datatype.ID]int
	publishers  map[datatype.ID]int
}

// NewDispatcher creates a Dispatcher resolving service names through types.
func NewDispatcher(types TypeLookup) *Dispatcher {
	return &Dispatcher{
		types:       types,
		handlers:    make(map[string]binding),
		servers:     make(map[datatype.ID]string),
		subscribers: make(map[datatype.ID]int),
		publishers:  make(map[datatype.ID]int),
	}
}

// RegisterHandler binds h to the named service data type.
func (d *Dispatcher) RegisterHandler(service string, h Handler) error {
	desc, ok := d.types.FindByName(service)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if desc.Kind != datatype.KindService {
		return fmt.Errorf("%w: %s is a %s", ErrNotService, service, desc.Kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[service]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, service)
	}
	d.handlers[service] = binding{desc: desc, handler: h}
	d.servers[desc.ID] = service

	slog.Info(fmt.Sprintf("%s - Serving %s (dtid=%d)", logPrefix, service, desc.ID))
	return nil
}

// UnregisterHandler removes the handler bound to service, if any.
func (d *Dispatcher) UnregisterHandler(service string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.handlers[service]
	if !ok {
		return
	}
	delete(d.handlers, service)
	delete(d.servers, b.desc.ID)
	slog.Info(fmt.Sprintf("%s - Stopped serving %s", logPrefix, service))
}

// Dispatch routes a request to the bound handler and wraps the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req *ServiceRequest) *ServiceResponse {
	slog.Debug(fmt.Sprintf("%s - service=%s id=%s", logPrefix, req.Service, req.ID))

	d.mu.RLock()
	b, ok := d.handlers[req.Service]
	d.mu.RUnlock()

	if !ok {
		return errorResponse(req.ID, "METHOD_NOT_FOUND", fmt.Sprintf("Unknown service: %s", req.Service), false)
	}
	if err := ctx.Err(); err != nil {
		return errorResponse(req.ID, "DEADLINE_EXCEEDED", err.Error(), true)
	}

	result, err := b.handler(ctx, req.Params)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - bad params for %s: %v", logPrefix, req.Service, err))
		return errorResponse(req.ID, "INVALID_ARGUMENT", fmt.Sprintf("Failed to parse %s params", req.Service), false)
	}
	return &ServiceResponse{ID: req.ID, Ok: true, Result: result}
}

// Services returns the names of the bound services, sorted.
func (d *Dispatcher) Services() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasServer reports whether a handler is bound for the service id.
func (d *Dispatcher) HasServer(id datatype.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.servers[id]
	return ok
}

// HasSubscriber reports whether a subscription to the message id is active.
func (d *Dispatcher) HasSubscriber(id datatype.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subscribers[id] > 0
}

// HasPublisher reports whether a publisher of the message id is active.
func (d *Dispatcher) HasPublisher(id datatype.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.publishers[id] > 0
}

// AddSubscriber records one more active subscription to the message id.
func (d *Dispatcher) AddSubscriber(id datatype.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[id]++
}

// RemoveSubscriber drops one subscription to the message id.
func (d *Dispatcher) RemoveSubscriber(id datatype.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decrement(d.subscribers, id)
}

// AddPublisher records one more active publisher of the message id.
func (d *Dispatcher) AddPublisher(id datatype.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publishers[id]++
}

// RemovePublisher drops one publisher of the message id.
func (d *Dispatcher) RemovePublisher(id datatype.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decrement(d.publishers, id)
}

func decrement(m map[datatype.ID]int, id datatype.ID) {
	if m[id] <= 1 {
		delete(m, id)
		return
	}
	m[id]--
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *ServiceResponse {
	return &ServiceResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// InvalidRequest is the response sent when the envelope itself cannot be decoded.
func InvalidRequest() *ServiceResponse {
	return errorResponse("", "INVALID_REQUEST", "Failed to decode request", false)
}
