//go:build !introspection_debug

package introspection

import (
	"fmt"
	"log/slog"
)

func invariantViolated(format string, args ...any) {
	slog.Error(fmt.Sprintf("%s - invariant violated: %s", logPrefix, fmt.Sprintf(format, args...)))
}
