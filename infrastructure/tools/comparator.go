package tools

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

var (
	_ ports.SimilarityComparator = (*AAIComparator)(nil)
	_ ports.ContigMerger         = (*ToolMerger)(nil)
)

// AAIComparator scores two assemblies by running the comparator tool and
// reading the average amino-acid identity from its TSV report.
type AAIComparator struct {
	tool    ports.Tool
	base    ports.Invocation
	workDir string
}

// NewAAIComparator creates a comparator. base supplies the project-level
// invocation fields; reports are written under workDir.
func NewAAIComparator(tool ports.Tool, base ports.Invocation, workDir string) *AAIComparator {
	return &AAIComparator{tool: tool, base: base, workDir: workDir}
}

// Compare runs the comparator on the contigs of a and b. The pair is
// normalized first so that the report path and argument order do not
// depend on call order.
func (c *AAIComparator) Compare(ctx context.Context, a, b domain.AssemblyUnit) (float64, error) {
	if b.ID < a.ID {
		a, b = b, a
	}
	key := domain.NewPairKey(a.ID, b.ID)
	stem := fmt.Sprintf("%s_vs_%s", key.A, key.B)

	inv := c.base
	inv.Inputs = []string{a.Contigs, b.Contigs}
	inv.Samples = unionSamples(a.Samples, b.Samples)
	inv.Output = filepath.Join(c.workDir, stem+".aai.tsv")
	inv.LogPath = filepath.Join(c.workDir, stem+".log")
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return 0, fmt.Errorf("create comparison directory: %w", err)
	}

	if _, err := c.tool.Run(ctx, inv); err != nil {
		return 0, err
	}
	return ReadAAIReport(inv.Output)
}

// ReadAAIReport returns the last column of the first data row of a
// tab-separated report. A first row whose last column is not numeric is
// treated as a header.
func ReadAAIReport(path string) (float64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open report %s: %w", path, ports.ErrInvalidToolOutput)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("report %s has no data row: %w", path, ports.ErrInvalidToolOutput)
		}
		if err != nil {
			return 0, fmt.Errorf("report %s: %v: %w", path, err, ports.ErrInvalidToolOutput)
		}
		last := strings.TrimSpace(record[len(record)-1])
		score, perr := strconv.ParseFloat(strings.TrimSuffix(last, "%"), 64)
		if perr == nil {
			return score, nil
		}
		if row > 0 {
			return 0, fmt.Errorf("report %s row %d: score %q is not a number: %w", path, row+1, last, ports.ErrInvalidToolOutput)
		}
	}
}

// ToolMerger combines contig files by running the merger tool once.
type ToolMerger struct {
	tool ports.Tool
	base ports.Invocation
}

// NewToolMerger creates a merger. base supplies the project-level
// invocation fields.
func NewToolMerger(tool ports.Tool, base ports.Invocation) *ToolMerger {
	return &ToolMerger{tool: tool, base: base}
}

// Merge writes the combination of the units' contigs to output.
func (m *ToolMerger) Merge(ctx context.Context, output string, units []domain.AssemblyUnit) error {
	if len(units) == 0 {
		return fmt.Errorf("merge %s: no input assemblies", output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create merge directory: %w", err)
	}

	inv := m.base
	inv.Output = output
	inv.Inputs = make([]string, len(units))
	var samples []string
	for i, u := range units {
		inv.Inputs[i] = u.Contigs
		samples = unionSamples(samples, u.Samples)
	}
	inv.Samples = samples
	inv.LogPath = strings.TrimSuffix(output, filepath.Ext(output)) + ".merge.log"

	_, err := m.tool.Run(ctx, inv)
	return err
}

func unionSamples(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
