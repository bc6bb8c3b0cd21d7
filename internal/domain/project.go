package domain

import "path/filepath"

// Options is the resolved, enumerated configuration that step skip
// predicates are evaluated against. Each field has exactly one documented
// effect on the plan.
type Options struct {
	// NoCOG disables COG functional annotation. Together with NoKEGG it
	// skips functional assignment (step 8).
	NoCOG bool `yaml:"no_cog"`

	// NoKEGG disables KEGG functional annotation. It skips pathway
	// prediction (step 20) and, together with NoCOG, step 8.
	NoKEGG bool `yaml:"no_kegg"`

	// NoPfam skips the Pfam HMM search (step 6).
	NoPfam bool `yaml:"no_pfam"`

	// NoBins skips every binning step (15 to 20).
	NoBins bool `yaml:"no_bins"`

	// DoublePass enables blastx on regions without predicted genes (step 9).
	DoublePass bool `yaml:"double_pass"`

	// ExternalAssembly points at a pre-computed contig file. When set, the
	// assembly steps (1 and 2) are omitted from the plan.
	ExternalAssembly string `yaml:"external_assembly,omitempty"`

	// Threads is the thread budget handed to each external tool.
	Threads int `yaml:"threads" validate:"min=1,max=1024"`

	// Workers bounds how many per-sample invocations or similarity
	// comparisons run concurrently within one step.
	Workers int `yaml:"workers" validate:"min=1,max=256"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Threads: 12, Workers: 1}
}

// HasExternalAssembly reports whether an external assembly replaces steps 1 and 2.
func (o Options) HasExternalAssembly() bool { return o.ExternalAssembly != "" }

// Project is everything one invocation needs to drive a run. It owns all
// derived state for the lifetime of the run, which may span several
// invocations through restart.
type Project struct {
	// Name identifies the project; its directory is Root/Name.
	Name string

	// Root is the parent directory holding project directories.
	Root string

	// Mode selects the execution graph.
	Mode Mode

	// Samples are the parsed manifest rows, one entry per sample.
	Samples []Sample

	// Options drive the step skip predicates.
	Options Options
}

// Dir returns the project's working directory.
func (p *Project) Dir() string { return filepath.Join(p.Root, p.Name) }

// Sample returns the sample with the given ID.
func (p *Project) Sample(id string) (Sample, bool) {
	for _, s := range p.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// Validate checks the cross-field consistency that struct tags cannot express.
func (p *Project) Validate() error {
	if p.Name == "" {
		return NewConfigError("project", "project name is required")
	}
	if !p.Mode.Valid() {
		return NewConfigError("mode", "unknown mode "+string(p.Mode))
	}
	if len(p.Samples) == 0 {
		return NewConfigError("samples", "at least one sample is required")
	}
	if !p.Options.HasExternalAssembly() && len(AssemblySamples(p.Samples)) == 0 {
		return NewConfigError("samples", "every sample is flagged noassembly; nothing to assemble")
	}
	if p.Options.Threads < 1 {
		return NewConfigError("threads", "must be at least 1")
	}
	if p.Options.Workers < 1 {
		return NewConfigError("workers", "must be at least 1")
	}
	return nil
}
