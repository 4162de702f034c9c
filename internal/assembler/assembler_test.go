package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleGroupsByVerticalExtent(t *testing.T) {
	frags := []Fragment{
		{XMin: 30, YMin: 0, YMax: 10, Text: "world"},
		{XMin: 10, YMin: 2, YMax: 12, Text: "hello"},
		{XMin: 5, YMin: 50, YMax: 60, Text: "again"},
	}
	assert.Equal(t, "hello world\nagain\n", Assemble(frags))
}

func TestAssembleEmpty(t *testing.T) {
	assert.Equal(t, "", Assemble(nil))
	assert.Equal(t, "", Assemble([]Fragment{{XMin: 0, YMin: 0, YMax: 10, Text: "   "}}))
}

func TestAssembleOneFragmentPerLine(t *testing.T) {
	// Paragraph mode yields one block per line; output must equal the blocks joined.
	frags := []Fragment{
		{XMin: 0, YMin: 0, YMax: 20, Text: "first paragraph"},
		{XMin: 0, YMin: 40, YMax: 60, Text: "second paragraph"},
		{XMin: 0, YMin: 80, YMax: 100, Text: "third"},
	}
	assert.Equal(t, "first paragraph\nsecond paragraph\nthird\n", Assemble(frags))
}

func TestAssembleToleranceFollowsLastFragment(t *testing.T) {
	// The band is recomputed from each fragment that joins the line, so a
	// short fragment narrows it.
	frags := []Fragment{
		{XMin: 0, YMin: 0, YMax: 20, Text: "a"},
		{XMin: 10, YMin: 8, YMax: 10, Text: "b"},
		{XMin: 20, YMin: 2, YMax: 18, Text: "c"},
	}
	assert.Equal(t, "a b\nc\n", Assemble(frags))
}

func TestAssembleDivisorWidensBand(t *testing.T) {
	frags := []Fragment{
		{XMin: 0, YMin: 0, YMax: 10, Text: "a"},
		{XMin: 10, YMin: 3, YMax: 16, Text: "b"},
	}
	assert.Equal(t, "a\nb\n", AssembleWith(frags, 2))
	assert.Equal(t, "a b\n", AssembleWith(frags, 1))
	assert.Equal(t, AssembleWith(frags, DefaultToleranceDivisor), AssembleWith(frags, 0))
}

func TestAssembleKeepsDuplicateX(t *testing.T) {
	frags := []Fragment{
		{XMin: 5, YMin: 0, YMax: 10, Text: "one"},
		{XMin: 5, YMin: 1, YMax: 11, Text: "two"},
	}
	assert.Equal(t, "one two\n", Assemble(frags))
}

func TestAssembleNormalizesUnicode(t *testing.T) {
	decomposed := "Mu\u0308ller"
	out := Assemble([]Fragment{{XMin: 0, YMin: 0, YMax: 10, Text: decomposed}})
	assert.Equal(t, "Müller\n", out)
}

func TestAssemblerStreaming(t *testing.T) {
	a := New(0)
	a.Add(Fragment{XMin: 20, YMin: 0, YMax: 10, Text: "b"})
	a.Add(Fragment{XMin: 0, YMin: 1, YMax: 9, Text: "a"})
	a.Add(Fragment{XMin: 0, YMin: 30, YMax: 40, Text: "c"})
	require.Equal(t, "a b\nc\n", a.String())

	// String flushes; further fragments continue the output.
	a.Add(Fragment{XMin: 0, YMin: 60, YMax: 70, Text: "d"})
	assert.Equal(t, "a b\nc\nd\n", a.String())
}

func TestMeanConfidence(t *testing.T) {
	assert.Nil(t, MeanConfidence(nil))

	got := MeanConfidence([]float64{0.5, 0.7, 0.9})
	require.NotNil(t, got)
	assert.InDelta(t, 0.7, *got, 1e-12)

	// A running sum, not the last value: the mean of a single outlier among
	// others must not equal the outlier.
	got = MeanConfidence([]float64{0.2, 0.2, 0.2, 1.0})
	require.NotNil(t, got)
	assert.InDelta(t, 0.4, *got, 1e-12)
}
