// Package assembler rebuilds reading order from positioned text fragments.
//
// Fragments are grouped into lines in a single greedy pass: a fragment joins
// the current line while its vertical extent stays inside the line's
// tolerance band, otherwise the line is flushed and a new one starts. Lines
// are never revisited, so the caller must feed fragments top to bottom.
package assembler

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultToleranceDivisor derives the tolerance band as half the height of
// the most recent fragment on the line.
const DefaultToleranceDivisor = 2.0

// Fragment is one positioned piece of recognized text.
type Fragment struct {
	XMin float64
	YMin float64
	YMax float64
	Text string
}

type token struct {
	x    float64
	text string
}

// Assembler is the streaming form of Assemble.
type Assembler struct {
	divisor float64

	started  bool
	prevYMin float64
	prevYMax float64
	yBuffer  float64
	line     []token

	out strings.Builder
}

// New returns an Assembler using divisor to derive the tolerance band from
// fragment height. Non-positive values select DefaultToleranceDivisor.
func New(divisor float64) *Assembler {
	if divisor <= 0 {
		divisor = DefaultToleranceDivisor
	}
	return &Assembler{divisor: divisor}
}

// Add consumes the next fragment.
func (a *Assembler) Add(f Fragment) {
	text := norm.NFC.String(f.Text)

	if a.started && a.prevYMin-a.yBuffer < f.YMin && a.prevYMax+a.yBuffer > f.YMax {
		a.line = append(a.line, token{x: f.XMin, text: text})
	} else {
		a.flush()
		a.line = append(a.line, token{x: f.XMin, text: text})
		a.started = true
	}
	a.prevYMin = f.YMin
	a.prevYMax = f.YMax
	a.yBuffer = (f.YMax - f.YMin) / a.divisor
}

// String flushes the pending line and returns everything assembled so far.
// Each emitted line ends with a newline.
func (a *Assembler) String() string {
	a.flush()
	return a.out.String()
}

func (a *Assembler) flush() {
	if len(a.line) == 0 {
		return
	}
	// Equal x keeps arrival order.
	sort.SliceStable(a.line, func(i, j int) bool { return a.line[i].x < a.line[j].x })

	parts := make([]string, 0, len(a.line))
	for _, t := range a.line {
		if s := strings.TrimSpace(t.text); s != "" {
			parts = append(parts, s)
		}
	}
	a.line = a.line[:0]
	if len(parts) == 0 {
		return
	}
	a.out.WriteString(strings.Join(parts, " "))
	a.out.WriteByte('\n')
}

// Assemble groups fragments into lines using DefaultToleranceDivisor.
func Assemble(frags []Fragment) string {
	return AssembleWith(frags, DefaultToleranceDivisor)
}

// AssembleWith groups fragments into lines using the given divisor.
func AssembleWith(frags []Fragment, divisor float64) string {
	a := New(divisor)
	for _, f := range frags {
		a.Add(f)
	}
	return a.String()
}
