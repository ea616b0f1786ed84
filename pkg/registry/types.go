package registry

import "github.com/morezero/datatype-introspection/pkg/datatype"

// KindSummary describes the registered types of one kind.
type KindSummary struct {
	Kind      datatype.Kind      `json:"kind"`
	Count     int                `json:"count"`
	Aggregate datatype.Signature `json:"aggregateSignature"`
}

// Summary describes the whole catalog.
type Summary struct {
	Frozen   bool        `json:"frozen"`
	Messages KindSummary `json:"messages"`
	Services KindSummary `json:"services"`
}

// HealthOutput holds the result of a health check.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Summary   Summary      `json:"summary"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Catalog  bool  `json:"catalog"`
	COMMS    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}
