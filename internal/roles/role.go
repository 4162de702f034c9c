// Package roles assigns semantic roles to filtered detections and assembles
// role-tagged text fragments into the final text of a domain.
package roles

import (
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/glean/internal/detection"
)

// Role is the semantic tag of a detected region.
type Role int

const (
	RoleUnknown Role = iota
	RolePlate
	RoleSent
	RoleReceived
	RoleGroup
	RoleApp
	// RoleMessage marks a chat bubble whose side is not known from its class
	// and is resolved from its position.
	RoleMessage
)

var roleNames = map[Role]string{
	RoleUnknown:  "unknown",
	RolePlate:    "plate",
	RoleSent:     "sent",
	RoleReceived: "received",
	RoleGroup:    "group",
	RoleApp:      "app",
	RoleMessage:  "message",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "unknown" is accepted
// so serialized fragments round-trip.
func (r *Role) UnmarshalText(b []byte) error {
	if strings.EqualFold(strings.TrimSpace(string(b)), roleNames[RoleUnknown]) {
		*r = RoleUnknown
		return nil
	}
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole parses a role name as produced by String.
func ParseRole(s string) (Role, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == want && r != RoleUnknown {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// Fragment is the recognized text of one region tagged with its role.
type Fragment struct {
	Detection  detection.Detection `json:"detection" yaml:"detection"`
	Text       string              `json:"text" yaml:"text"`
	Role       Role                `json:"role" yaml:"role"`
	Confidence *float64            `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Summary is the assembled output of a domain.
type Summary struct {
	Text  string
	App   string
	Group string
}

// Policy is the per-domain ordering, role assignment and assembly rule set.
type Policy interface {
	// Order returns detections in the sequence their text should be read.
	Order(dets []detection.Detection) []detection.Detection
	// Classify assigns a role to one detection within frame.
	Classify(d detection.Detection, frame image.Rectangle) Role
	// Assemble joins fragments, already in Order sequence, into a summary.
	Assemble(frags []Fragment) Summary
}
