package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectServicePrefix = "introspection"
	SubjectAnnounce      = "introspection.announce"
)

// BuildServiceSubject builds the request subject a node serves introspection on.
func BuildServiceSubject(node string) string {
	return fmt.Sprintf("%s.%s.srv", SubjectServicePrefix, SafeToken(node))
}

// BuildAnnounceSubject builds the per-node catalog announcement subject under prefix.
// An empty prefix selects SubjectAnnounce.
func BuildAnnounceSubject(prefix, node string) string {
	if prefix == "" {
		prefix = SubjectAnnounce
	}
	return fmt.Sprintf("%s.%s", prefix, SafeToken(node))
}

// AnnounceWildcard matches every node's announcement subject under prefix.
func AnnounceWildcard(prefix string) string {
	if prefix == "" {
		prefix = SubjectAnnounce
	}
	return prefix + ".*"
}

// SafeToken makes s usable as a single subject token.
func SafeToken(s string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}
