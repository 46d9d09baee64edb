// Package linediff provides simple line-by-line diff computation.
package linediff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Adapter implements ports.DiffPort using traditional line-by-line unified diff.
type Adapter struct {
	context int
}

// New creates a new line-based diff adapter showing context lines around
// each change. Identity manifests are short, so a negative value shows
// the whole manifest.
func New(context int) *Adapter {
	return &Adapter{context: context}
}

// ComputeDiff performs traditional line-by-line unified diff.
func (a *Adapter) ComputeDiff(baseName, headName string, base, head []byte) string {
	linesA := difflib.SplitLines(string(base))
	linesB := difflib.SplitLines(string(head))
	ctx := a.context
	if ctx < 0 {
		ctx = max(len(linesA), len(linesB))
	}
	ud := difflib.UnifiedDiff{
		A:        linesA,
		B:        linesB,
		FromFile: baseName,
		ToFile:   headName,
		Context:  ctx,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("error computing diff: %s", err)
	}
	return strings.TrimSpace(text)
}
