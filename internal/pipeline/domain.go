package pipeline

import (
	"fmt"
	"strings"
)

// Domain selects the detection model, role policy and assembly rules of a run.
type Domain int

const (
	// DomainPlate reads vehicle license plates.
	DomainPlate Domain = iota + 1
	// DomainMessage reads chat screenshots into a labeled transcript.
	DomainMessage
	// DomainGeneric reads the whole frame without a detector.
	DomainGeneric
)

// Domains lists every domain in a stable order.
var Domains = []Domain{DomainPlate, DomainMessage, DomainGeneric}

func (d Domain) String() string {
	switch d {
	case DomainPlate:
		return "plate"
	case DomainMessage:
		return "message"
	case DomainGeneric:
		return "generic"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// UsesDetector reports whether runs in d start from object detection.
func (d Domain) UsesDetector() bool {
	return d == DomainPlate || d == DomainMessage
}

// ParseDomain accepts a domain name or one of the labels produced by the
// upstream image classifier ("car", "texting", "document", "other").
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plate", "plates", "car", "license_plate", "licence_plate":
		return DomainPlate, nil
	case "message", "messages", "texting", "chat":
		return DomainMessage, nil
	case "generic", "document", "other":
		return DomainGeneric, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Domain) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Domain) UnmarshalText(b []byte) error {
	v, err := ParseDomain(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
