package tools

import (
	"path/filepath"
	"strings"
	"text/template"
)

// GetTemplateFuncMap returns the function map available to command
// argument templates.
//
// The returned FuncMap is immutable and thread-safe. Functions never panic;
// they return safe defaults on degenerate input.
//
// Usage in tools configuration:
//
//	args: ["-1", "{{join .Inputs \",\"}}", "-o", "{{dir .Output}}"]
func GetTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// join concatenates elements with separator between them.
		// Template usage: {{join .Inputs ","}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},

		// first returns the first element, or "" for an empty list.
		// Template usage: {{first .Inputs}}
		"first": func(elems []string) string {
			if len(elems) == 0 {
				return ""
			}
			return elems[0]
		},

		// base returns the last element of a path.
		// Template usage: {{base .Output}}
		"base": filepath.Base,

		// dir returns all but the last element of a path.
		// Template usage: {{dir .Output}}
		"dir": filepath.Dir,

		// stem strips the directory and every extension from a path.
		// Template usage: {{stem "reads/s1_1.fastq.gz"}} -> s1_1
		"stem": func(path string) string {
			name := filepath.Base(path)
			if i := strings.IndexByte(name, '.'); i > 0 {
				return name[:i]
			}
			return name
		},

		// trimSuffix returns s without the provided trailing suffix.
		// Template usage: {{trimSuffix .Output ".fasta"}}
		"trimSuffix": func(s, suffix string) string {
			return strings.TrimSuffix(s, suffix)
		},

		// hasSuffix reports whether s ends with suffix.
		// Template usage: {{if hasSuffix (first .Inputs) ".gz"}}
		"hasSuffix": func(s, suffix string) bool {
			return strings.HasSuffix(s, suffix)
		},

		// add performs integer addition.
		// Template usage: {{add .Threads 1}}
		"add": func(a, b int) int {
			return a + b
		},

		// div performs integer division.
		// Returns 0 if divisor is 0 to prevent template panics.
		// Template usage: {{div .Threads 2}}
		"div": func(a, b int) int {
			if b == 0 {
				return 0
			}
			return a / b
		},

		// default returns fallback when value is empty.
		// Template usage: {{default .Sample "all"}}
		"default": func(value, fallback string) string {
			if value == "" {
				return fallback
			}
			return value
		},
	}
}
