package application

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-sqm/internal/domain"
)

// Manifest row flags. They are matched case-insensitively.
const (
	flagNoAssembly = "noassembly"
	flagNoBinning  = "nobinning"
)

// ManifestOptions controls how read-file references are resolved.
type ManifestOptions struct {
	// RawReadsDir resolves relative read-file paths. Empty keeps them as
	// written.
	RawReadsDir string

	// CheckFiles verifies that every referenced read file exists.
	CheckFiles bool
}

// LoadManifest reads and parses the samples manifest at path.
// An unreadable manifest is a MissingInputError; a malformed one is a
// ManifestError.
func LoadManifest(path string, opts ManifestOptions) ([]domain.Sample, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &domain.MissingInputError{Path: path, Err: err}
	}
	defer f.Close()

	samples, err := parseManifest(f, path, opts)
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// ParseManifest parses a tab-separated samples manifest:
//
//	<sample> <file> <pair1|pair2|unpaired> [noassembly] [nobinning]
//
// Rows of the same sample accumulate; a flag on any row applies to the
// whole sample. Samples keep the order of their first appearance.
func ParseManifest(r io.Reader, opts ManifestOptions) ([]domain.Sample, error) {
	return parseManifest(r, "", opts)
}

type manifestEntry struct {
	sample    domain.Sample
	firstLine int
	files     map[string]struct{}
}

func parseManifest(r io.Reader, path string, opts ManifestOptions) ([]domain.Sample, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	fold := cases.Fold()
	var order []string
	entries := make(map[string]*manifestEntry)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &domain.ManifestError{Path: path, Line: perr.Line, Reason: perr.Err.Error()}
			}
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		line, _ := reader.FieldPos(0)

		fields := trimFields(record)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, &domain.ManifestError{Path: path, Line: line,
				Reason: fmt.Sprintf("expected at least 3 columns (sample, file, pair), got %d", len(fields))}
		}

		id, file := fields[0], fields[1]
		if id == "" || file == "" {
			return nil, &domain.ManifestError{Path: path, Line: line, Reason: "sample and file columns must not be empty"}
		}
		role, err := domain.ParsePairRole(fold.String(fields[2]))
		if err != nil {
			return nil, &domain.ManifestError{Path: path, Line: line, Reason: err.Error()}
		}

		entry, ok := entries[id]
		if !ok {
			entry = &manifestEntry{
				sample:    domain.Sample{ID: id},
				firstLine: line,
				files:     make(map[string]struct{}),
			}
			entries[id] = entry
			order = append(order, id)
		}

		for _, flag := range fields[3:] {
			switch fold.String(flag) {
			case "":
			case flagNoAssembly:
				entry.sample.NoAssembly = true
			case flagNoBinning:
				entry.sample.NoBinning = true
			default:
				return nil, &domain.ManifestError{Path: path, Line: line,
					Reason: fmt.Sprintf("unknown flag %q (valid: %s, %s)", flag, flagNoAssembly, flagNoBinning)}
			}
		}

		resolved := file
		if opts.RawReadsDir != "" && !filepath.IsAbs(file) {
			resolved = filepath.Join(opts.RawReadsDir, file)
		}
		if _, dup := entry.files[resolved]; dup {
			return nil, &domain.ManifestError{Path: path, Line: line,
				Reason: fmt.Sprintf("file %q listed twice for sample %q", file, id)}
		}
		entry.files[resolved] = struct{}{}
		entry.sample.Files = append(entry.sample.Files, domain.ReadFile{Path: resolved, Role: role})
	}

	if len(order) == 0 {
		return nil, &domain.ManifestError{Path: path, Line: 0, Reason: "manifest declares no samples"}
	}

	samples := make([]domain.Sample, 0, len(order))
	for _, id := range order {
		entry := entries[id]
		if err := checkPairing(entry.sample); err != nil {
			return nil, &domain.ManifestError{Path: path, Line: entry.firstLine, Reason: err.Error()}
		}
		if opts.CheckFiles {
			for _, f := range entry.sample.Files {
				if _, err := os.Stat(f.Path); err != nil {
					return nil, &domain.MissingInputError{Path: f.Path, Sample: id, Err: err}
				}
			}
		}
		samples = append(samples, entry.sample)
	}
	return samples, nil
}

// checkPairing requires forward or single-end reads and never more reverse
// files than forward ones.
func checkPairing(s domain.Sample) error {
	first := len(s.FilesWithRole(domain.PairFirst))
	second := len(s.FilesWithRole(domain.PairSecond))
	unpaired := len(s.FilesWithRole(domain.PairUnpaired))
	if first == 0 && unpaired == 0 {
		return fmt.Errorf("sample %q has no pair1 or unpaired reads", s.ID)
	}
	if second > first {
		return fmt.Errorf("sample %q has %d pair2 files but only %d pair1 files", s.ID, second, first)
	}
	return nil
}

// trimFields trims whitespace and drops trailing empty columns.
func trimFields(record []string) []string {
	out := make([]string, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
