package assembler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genFragment generates a fragment whose text encodes its x position and
// index as "xNNN#i", so the output can be checked token by token.
func genFragment() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 999),
		gen.Float64Range(0, 500),
		gen.Float64Range(1, 40),
	).Map(func(vals []interface{}) Fragment {
		x, ok := vals[0].(int)
		if !ok {
			panic("expected int")
		}
		y, ok := vals[1].(float64)
		if !ok {
			panic("expected float64")
		}
		h, ok := vals[2].(float64)
		if !ok {
			panic("expected float64")
		}
		return Fragment{XMin: float64(x), YMin: y, YMax: y + h, Text: fmt.Sprintf("x%03d", x)}
	})
}

func genFragments() gopter.Gen {
	return gen.SliceOfN(30, genFragment()).Map(func(frags []Fragment) []Fragment {
		for i := range frags {
			frags[i].Text = fmt.Sprintf("%s#%d", frags[i].Text, i)
		}
		return frags
	})
}

func outputTokens(out string) [][]string {
	var lines [][]string
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if out == "" {
			break
		}
		lines = append(lines, strings.Fields(line))
	}
	return lines
}

func TestAssemblerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every token appears exactly once", prop.ForAll(
		func(frags []Fragment) bool {
			var got []string
			for _, line := range outputTokens(Assemble(frags)) {
				got = append(got, line...)
			}
			want := make([]string, len(frags))
			for i, f := range frags {
				want[i] = f.Text
			}
			sort.Strings(got)
			sort.Strings(want)
			return strings.Join(got, " ") == strings.Join(want, " ")
		},
		genFragments(),
	))

	properties.Property("no line is empty", prop.ForAll(
		func(frags []Fragment) bool {
			for _, line := range outputTokens(Assemble(frags)) {
				if len(line) == 0 {
					return false
				}
			}
			return true
		},
		genFragments(),
	))

	properties.Property("tokens within a line ascend by x", prop.ForAll(
		func(frags []Fragment) bool {
			for _, line := range outputTokens(Assemble(frags)) {
				prev := -1
				for _, tok := range line {
					head, _, ok := strings.Cut(strings.TrimPrefix(tok, "x"), "#")
					if !ok {
						return false
					}
					x, err := strconv.Atoi(head)
					if err != nil {
						return false
					}
					if x < prev {
						return false
					}
					prev = x
				}
			}
			return true
		},
		genFragments(),
	))

	properties.Property("output is a sequence of newline terminated lines", prop.ForAll(
		func(frags []Fragment) bool {
			out := Assemble(frags)
			return out == "" || strings.HasSuffix(out, "\n")
		},
		genFragments(),
	))

	properties.TestingRun(t)
}
