package application

import (
	"fmt"
	"path/filepath"

	"github.com/ahrav/go-sqm/internal/domain"
)

// Layout derives the file handles steps read and write inside a project
// directory. Every handle is a pure function of the project, so a restarted
// run finds the outputs of steps committed by an earlier run.
type Layout struct {
	project *domain.Project
}

// NewLayout returns the layout of project.
func NewLayout(project *domain.Project) Layout {
	return Layout{project: project}
}

// StepDir returns the working directory of step, e.g. <project>/03.rna_prediction.
func (l Layout) StepDir(step domain.Step) string {
	return filepath.Join(l.project.Dir(), fmt.Sprintf("%02d.%s", step.Number, step.Name))
}

// StepOutput returns the output prefix of step for sample, or for the
// whole project when sample is empty.
func (l Layout) StepOutput(step domain.Step, sample string) string {
	if sample == "" {
		sample = l.project.Name
	}
	return filepath.Join(l.StepDir(step), sample)
}

// LogDir returns the directory receiving tool logs.
func (l Layout) LogDir() string {
	return filepath.Join(l.project.Dir(), "logs")
}

// AssemblyDir returns the directory holding step 1 outputs.
func (l Layout) AssemblyDir() string {
	return filepath.Join(l.project.Dir(), fmt.Sprintf("%02d.assembly", StepAssembly))
}

// SampleAssembly returns the contig file assembled from one sample.
func (l Layout) SampleAssembly(sample string) string {
	return filepath.Join(l.AssemblyDir(), sample+".fasta")
}

// PooledAssembly returns the contig file assembled from pooled reads.
func (l Layout) PooledAssembly() string {
	return filepath.Join(l.AssemblyDir(), l.project.Name+".fasta")
}

// MergeDir returns the directory holding step 2 outputs.
func (l Layout) MergeDir() string {
	return filepath.Join(l.project.Dir(), fmt.Sprintf("%02d.merge_assemblies", StepMergeAssemblies))
}

// Contigs returns the contig file that steps after assembly read. sample
// selects the per-sample assembly in independent mode and is ignored
// otherwise.
//
// A merge mode with a single assembly sample reads that sample's assembly
// directly. In seqmerge mode the final unit of N assemblies is always
// merged<N-1>, so the handle is known without consulting the merge history.
func (l Layout) Contigs(sample string) string {
	p := l.project
	if p.Options.HasExternalAssembly() {
		return p.Options.ExternalAssembly
	}
	if p.Mode == domain.ModeIndependent {
		return l.SampleAssembly(sample)
	}
	if !p.Mode.MergesAssemblies() {
		return l.PooledAssembly()
	}
	assembled := domain.AssemblySamples(p.Samples)
	switch {
	case len(assembled) == 1:
		return l.SampleAssembly(assembled[0].ID)
	case p.Mode == domain.ModeMerged:
		return filepath.Join(l.MergeDir(), p.Name+".fasta")
	default:
		return filepath.Join(l.MergeDir(), fmt.Sprintf("%s%d.fasta", MergedUnitPrefix, len(assembled)-1))
	}
}
