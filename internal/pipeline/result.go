package pipeline

import (
	"time"

	"github.com/MeKo-Tech/glean/internal/roles"
)

// Stage names recorded in Result.Stages.
const (
	StageDetect   = "detect"
	StageFilter   = "filter"
	StageOrder    = "order"
	StageExtract  = "extract"
	StageAssemble = "assemble"
	StageFallback = "fallback"
)

// Result is the assembled output of one run.
type Result struct {
	Domain Domain `json:"domain" yaml:"domain"`
	Text   string `json:"text" yaml:"text"`
	// Detected is false when Text came from whole-image fallback.
	Detected   bool     `json:"detected" yaml:"detected"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	App        string   `json:"app,omitempty" yaml:"app,omitempty"`
	Group      string   `json:"group,omitempty" yaml:"group,omitempty"`
	// Fragments are the per-region texts in reading order. Empty on fallback.
	Fragments []roles.Fragment         `json:"fragments,omitempty" yaml:"fragments,omitempty"`
	Elapsed   time.Duration            `json:"elapsed_ns" yaml:"elapsed"`
	Stages    map[string]time.Duration `json:"stages_ns,omitempty" yaml:"stages,omitempty"`
	// Width and Height are the processed image dimensions.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// FragmentCount returns the number of regions that produced text.
func (r *Result) FragmentCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Fragments {
		if f.Text != "" {
			n++
		}
	}
	return n
}
