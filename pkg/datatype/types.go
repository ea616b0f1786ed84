// Package datatype defines data type kinds, ids, signatures, descriptors and id masks
// shared by the registry, the dispatcher and the introspection services.
package datatype

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the category of a data type. Values match the wire encoding.
type Kind uint8

const (
	KindService Kind = 0
	KindMessage Kind = 1
)

const (
	MaxMessageID ID = 65535
	MaxServiceID ID = 255

	// MaxFullNameLen bounds the length of a dotted full name.
	MaxFullNameLen = 80
)

// IsValid reports whether k is one of the two defined kinds.
func (k Kind) IsValid() bool {
	return k == KindService || k == KindMessage
}

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses a kind name or its numeric wire value.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message", "msg", "1":
		return KindMessage, nil
	case "service", "srv", "0":
		return KindService, nil
	default:
		return 0, fmt.Errorf("unknown data type kind %q", s)
	}
}

// Kinds lists the valid kinds in wire order.
func Kinds() []Kind {
	return []Kind{KindService, KindMessage}
}

// ID is a numeric data type identifier within a kind's namespace.
type ID uint16

// MaxID returns the largest id allowed for kind, or 0 for an invalid kind.
func MaxID(kind Kind) ID {
	switch kind {
	case KindMessage:
		return MaxMessageID
	case KindService:
		return MaxServiceID
	default:
		return 0
	}
}

// IDSpaceSize is MaxID(kind)+1, the normalized mask length for kind.
func IDSpaceSize(kind Kind) int {
	if !kind.IsValid() {
		return 0
	}
	return int(MaxID(kind)) + 1
}

// IsValidFor reports whether id fits the id space of kind.
func (id ID) IsValidFor(kind Kind) bool {
	return kind.IsValid() && id <= MaxID(kind)
}

// Descriptor is a registered data type.
type Descriptor struct {
	Kind      Kind      `json:"kind"`
	ID        ID        `json:"id"`
	FullName  string    `json:"name"`
	Signature Signature `json:"signature"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s dtid=%d dtk=%s sig=%s", d.FullName, d.ID, d.Kind, d.Signature)
}

var fullNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

// ValidateFullName checks the dotted full-name format.
func ValidateFullName(name string) error {
	if name == "" {
		return fmt.Errorf("full name is empty")
	}
	if len(name) > MaxFullNameLen {
		return fmt.Errorf("full name %q exceeds %d characters", name, MaxFullNameLen)
	}
	if !fullNameRegex.MatchString(name) {
		return fmt.Errorf("full name %q must be dotted identifiers with a namespace", name)
	}
	return nil
}

// Validate checks kind, id range and name of the descriptor.
func (d Descriptor) Validate() error {
	if !d.Kind.IsValid() {
		return fmt.Errorf("invalid kind %d", uint8(d.Kind))
	}
	if !d.ID.IsValidFor(d.Kind) {
		return fmt.Errorf("id %d out of range for %s (max %d)", d.ID, d.Kind, MaxID(d.Kind))
	}
	return ValidateFullName(d.FullName)
}

// ParseID parses a decimal id and checks it against kind.
func ParseID(kind Kind, s string) (ID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid data type id %q: %w", s, err)
	}
	id := ID(v)
	if !id.IsValidFor(kind) {
		return 0, fmt.Errorf("data type id %d out of range for %s (max %d)", id, kind, MaxID(kind))
	}
	return id, nil
}
