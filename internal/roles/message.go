package roles

import (
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/glean/internal/detection"
)

// GroupNamePrefix introduces the chat title in an assembled transcript.
const GroupNamePrefix = "Group Name: "

// DefaultMessageClasses maps the message detector's class names to roles.
func DefaultMessageClasses() map[string]Role {
	return map[string]Role{
		"group":   RoleGroup,
		"message": RoleMessage,
	}
}

// MessagePolicy orders chat regions top to bottom and resolves sender side
// from bubble position.
type MessagePolicy struct {
	classes map[string]Role
}

// NewMessagePolicy builds a policy from a class-name to role-name mapping.
// A nil or empty mapping selects DefaultMessageClasses.
func NewMessagePolicy(classes map[string]string) (*MessagePolicy, error) {
	if len(classes) == 0 {
		return &MessagePolicy{classes: DefaultMessageClasses()}, nil
	}
	mapped := make(map[string]Role, len(classes))
	for class, name := range classes {
		r, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", class, err)
		}
		if r == RolePlate {
			return nil, fmt.Errorf("class %q: role %s is not a message role", class, r)
		}
		mapped[strings.ToLower(class)] = r
	}
	return &MessagePolicy{classes: mapped}, nil
}

// Order sorts by top edge, keeping detector order for equal heights.
func (p *MessagePolicy) Order(dets []detection.Detection) []detection.Detection {
	return detection.SortByTop(dets)
}

// Classify maps the detection label to a role. Labels that map to
// RoleMessage, and labels the policy does not know, are resolved by
// position: a bubble whose left edge is closer to the frame's horizontal
// midpoint than its right edge is RoleSent, otherwise RoleReceived.
func (p *MessagePolicy) Classify(d detection.Detection, frame image.Rectangle) Role {
	if r, ok := p.classes[strings.ToLower(d.Label)]; ok && r != RoleMessage {
		return r
	}
	mid := float64(frame.Min.X) + float64(frame.Dx())/2
	distLeft := mid - d.Box.MinX
	distRight := d.Box.MaxX - mid
	if distLeft < distRight {
		return RoleSent
	}
	return RoleReceived
}

// Assemble builds the transcript. Group titles come first, then one
// "Sent: " or "Received: " line per message in reading order. App regions
// only set Summary.App.
func (p *MessagePolicy) Assemble(frags []Fragment) Summary {
	var (
		groups []string
		lines  []string
		app    string
	)
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		switch f.Role {
		case RoleGroup:
			groups = append(groups, text)
		case RoleApp:
			if app == "" {
				app = text
			}
		case RoleSent:
			lines = append(lines, "Sent: "+text)
		case RoleReceived:
			lines = append(lines, "Received: "+text)
		default:
			lines = append(lines, text)
		}
	}

	var b strings.Builder
	for _, g := range groups {
		b.WriteString(GroupNamePrefix)
		b.WriteString(g)
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(lines, "\n"))

	return Summary{
		Text:  strings.TrimRight(b.String(), "\n"),
		App:   app,
		Group: strings.Join(groups, ", "),
	}
}
