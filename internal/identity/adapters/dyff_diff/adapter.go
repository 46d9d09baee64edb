// Package dyffdiff computes semantic YAML diffs of identity manifests with
// the dyff library.
package dyffdiff

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
)

// Adapter implements ports.DiffPort using dyff for semantic YAML diffing.
type Adapter struct {
	logger *slog.Logger
}

// New creates a new dyff-based diff adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Adapter{logger: logger}
}

// ComputeDiff compares two YAML documents path by path.
// Returns empty string when they are equal or cannot be compared (caller
// should use the line diff as fallback).
func (a *Adapter) ComputeDiff(baseName, headName string, base, head []byte) string {
	report, err := compare(baseName, headName, base, head)
	if err != nil {
		a.logger.Warn("semantic diff failed", "base", baseName, "head", headName, "error", err)
		return ""
	}
	if len(report.Diffs) == 0 {
		return ""
	}

	var buf bytes.Buffer
	writer := &dyff.HumanReport{
		Report:            report,
		DoNotInspectCerts: true,
		NoTableStyle:      true,
		OmitHeader:        true,
	}
	if err := writer.WriteReport(&buf); err != nil {
		a.logger.Warn("writing semantic diff failed", "error", err)
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", baseName)
	fmt.Fprintf(&sb, "+++ %s\n\n", headName)
	sb.WriteString(trimLines(buf.String()))
	return strings.TrimSpace(sb.String())
}

func compare(baseName, headName string, base, head []byte) (dyff.Report, error) {
	from, err := inputFile(baseName, base)
	if err != nil {
		return dyff.Report{}, fmt.Errorf("parsing %s: %w", baseName, err)
	}
	to, err := inputFile(headName, head)
	if err != nil {
		return dyff.Report{}, fmt.Errorf("parsing %s: %w", headName, err)
	}
	return dyff.CompareInputFiles(from, to)
}

// inputFile wraps YAML bytes as a dyff input. Empty input (a chart missing
// at the base ref) is a file with no documents.
func inputFile(name string, data []byte) (ytbx.InputFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ytbx.InputFile{Location: name}, nil
	}
	docs, err := ytbx.LoadYAMLDocuments(data)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	return ytbx.InputFile{Location: name, Documents: docs}, nil
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
