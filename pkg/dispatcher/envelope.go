// Package dispatcher binds service handlers, routes incoming COMMS requests to them,
// and tracks which data types this node serves, publishes, and subscribes to.
package dispatcher

import "encoding/json"

// ServiceRequest is the JSON envelope for incoming COMMS service requests.
// Service is the full name of the service data type being called.
type ServiceRequest struct {
	ID      string             `json:"id"`
	Service string             `json:"service"`
	Params  json.RawMessage    `json:"params"`
	Ctx     *InvocationContext `json:"ctx,omitempty"`
}

// ServiceResponse is the JSON envelope for COMMS service responses.
type ServiceResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	Node          string `json:"node,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}
