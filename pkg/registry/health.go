package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

const healthLogPrefix = "registry:health"

// Check tests an external dependency; nil means the dependency is not configured.
type Check func(ctx context.Context) error

// HealthParams holds the dependency checks consulted by Health.
type HealthParams struct {
	COMMS    Check
	Database Check
}

// Summarize returns counts and aggregate signatures per kind.
func (r *Registry) Summarize() Summary {
	return Summary{
		Frozen: r.IsFrozen(),
		Messages: KindSummary{
			Kind:      datatype.KindMessage,
			Count:     r.Count(datatype.KindMessage),
			Aggregate: r.Aggregate(datatype.KindMessage),
		},
		Services: KindSummary{
			Kind:      datatype.KindService,
			Count:     r.Count(datatype.KindService),
			Aggregate: r.Aggregate(datatype.KindService),
		},
	}
}

// Health reports whether the catalog is frozen and the configured dependencies respond.
func (r *Registry) Health(ctx context.Context, params HealthParams) *HealthOutput {
	summary := r.Summarize()
	checks := HealthChecks{Catalog: summary.Frozen}

	if params.COMMS != nil {
		if err := params.COMMS(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS check failed: %v", healthLogPrefix, err))
		} else {
			checks.COMMS = true
		}
	}

	healthy := checks.Catalog && checks.COMMS
	if params.Database != nil {
		dbOk := true
		if err := params.Database(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - database check failed: %v", healthLogPrefix, err))
			dbOk = false
		}
		checks.Database = &dbOk
		healthy = healthy && dbOk
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status:    status,
		Checks:    checks,
		Summary:   summary,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
