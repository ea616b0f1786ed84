//go:build introspection_debug

package introspection

import "fmt"

func invariantViolated(format string, args ...any) {
	panic(fmt.Sprintf("%s - invariant violated: %s", logPrefix, fmt.Sprintf(format, args...)))
}
