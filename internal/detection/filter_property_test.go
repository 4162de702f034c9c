package detection

import (
	"reflect"
	"testing"

	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genDetection generates a detection with a small box somewhere in a 200x200 frame.
func genDetection() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 190),
		gen.Float64Range(0, 190),
		gen.Float64Range(0, 30),
		gen.Float64Range(0, 30),
		gen.Float64Range(0, 1),
	).Map(func(vals []interface{}) Detection {
		x, ok := vals[0].(float64)
		if !ok {
			panic("expected float64")
		}
		y, ok := vals[1].(float64)
		if !ok {
			panic("expected float64")
		}
		w, ok := vals[2].(float64)
		if !ok {
			panic("expected float64")
		}
		h, ok := vals[3].(float64)
		if !ok {
			panic("expected float64")
		}
		conf, ok := vals[4].(float64)
		if !ok {
			panic("expected float64")
		}
		return Detection{Box: geometry.FromXYWH(x, y, w, h), Confidence: conf}
	})
}

func genDetections() gopter.Gen {
	return gen.SliceOfN(25, genDetection())
}

func genFilterConfig() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 0.9),
		gen.Float64Range(0.05, 0.95),
	).Map(func(vals []interface{}) FilterConfig {
		conf, ok := vals[0].(float64)
		if !ok {
			panic("expected float64")
		}
		iou, ok := vals[1].(float64)
		if !ok {
			panic("expected float64")
		}
		return FilterConfig{ConfidenceThreshold: conf, NMSIoUThreshold: iou}
	})
}

func TestFilter_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("survivors are above the confidence threshold", prop.ForAll(
		func(dets []Detection, cfg FilterConfig) bool {
			for _, d := range Filter(dets, cfg) {
				if !(d.Confidence > cfg.ConfidenceThreshold) || d.Box.IsDegenerate() {
					return false
				}
			}
			return true
		},
		genDetections(), genFilterConfig(),
	))

	properties.Property("no two survivors overlap at or above the IoU threshold", prop.ForAll(
		func(dets []Detection, cfg FilterConfig) bool {
			out := Filter(dets, cfg)
			for i := range out {
				for j := i + 1; j < len(out); j++ {
					if geometry.IoU(out[i].Box, out[j].Box) >= cfg.NMSIoUThreshold {
						return false
					}
				}
			}
			return true
		},
		genDetections(), genFilterConfig(),
	))

	properties.Property("survivors are ordered by descending confidence", prop.ForAll(
		func(dets []Detection, cfg FilterConfig) bool {
			out := Filter(dets, cfg)
			for i := 1; i < len(out); i++ {
				if out[i].Confidence > out[i-1].Confidence {
					return false
				}
			}
			return true
		},
		genDetections(), genFilterConfig(),
	))

	properties.Property("filtering is idempotent", prop.ForAll(
		func(dets []Detection, cfg FilterConfig) bool {
			once := Filter(dets, cfg)
			twice := Filter(once, cfg)
			return reflect.DeepEqual(once, twice)
		},
		genDetections(), genFilterConfig(),
	))

	properties.TestingRun(t)
}

func TestSortByTop_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("output is a non-decreasing permutation by MinY", prop.ForAll(
		func(dets []Detection) bool {
			out := SortByTop(dets)
			if len(out) != len(dets) {
				return false
			}
			for i := 1; i < len(out); i++ {
				if out[i].Box.MinY < out[i-1].Box.MinY {
					return false
				}
			}
			return true
		},
		genDetections(),
	))

	properties.TestingRun(t)
}
