package application

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-sqm/internal/domain"
)

// Canonical step numbers. They are user-facing through --step and --test
// and must never be renumbered.
const (
	StepAssembly             = 1
	StepMergeAssemblies      = 2
	StepRNAPrediction        = 3
	StepORFPrediction        = 4
	StepHomologySearch       = 5
	StepPfamSearch           = 6
	StepTaxonomicAssignment  = 7
	StepFunctionalAssignment = 8
	StepBlastxDoublePass     = 9
	StepContigTaxonomy       = 10
	StepReadMapping          = 11
	StepTaxaAbundance        = 12
	StepFunctionCoverage     = 13
	StepGeneTable            = 14
	StepBinning              = 15
	StepBinRefinement        = 16
	StepBinTaxonomy          = 17
	StepBinQuality           = 18
	StepBinTable             = 19
	StepPathwayPrediction    = 20
	StepStatistics           = 21
)

// maxSuggestionDistance bounds how far a mistyped step name may be from a
// real one before no suggestion is offered.
const maxSuggestionDistance = 4

var (
	allModes = []domain.Mode{
		domain.ModeIndependent,
		domain.ModeCoassembly,
		domain.ModeMerged,
		domain.ModeSeqMerge,
	}
	mergeModes      = []domain.Mode{domain.ModeMerged, domain.ModeSeqMerge}
	independentOnly = []domain.Mode{domain.ModeIndependent}
	assemblyScoped  = []domain.Mode{domain.ModeIndependent, domain.ModeMerged, domain.ModeSeqMerge}
)

func skipExternalAssembly(o domain.Options) bool { return o.HasExternalAssembly() }
func skipNoBins(o domain.Options) bool           { return o.NoBins }

// canonicalSteps returns the declarative step table shared by every mode.
func canonicalSteps() []domain.Step {
	return []domain.Step{
		{Number: StepAssembly, Name: "assembly", Description: "Assemble reads into contigs",
			Modes: allModes, PerSample: assemblyScoped, Skip: skipExternalAssembly},
		{Number: StepMergeAssemblies, Name: "merge_assemblies", Description: "Combine per-sample assemblies into one",
			Modes: mergeModes, Skip: skipExternalAssembly, Requires: []int{StepAssembly}},
		{Number: StepRNAPrediction, Name: "rna_prediction", Description: "Predict rRNAs and tRNAs",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepAssembly, StepMergeAssemblies}},
		{Number: StepORFPrediction, Name: "orf_prediction", Description: "Predict open reading frames",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepRNAPrediction}},
		{Number: StepHomologySearch, Name: "homology_search", Description: "Search genes against taxonomy and function databases",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepORFPrediction}},
		{Number: StepPfamSearch, Name: "pfam_search", Description: "HMM search against Pfam",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepORFPrediction},
			Skip: func(o domain.Options) bool { return o.NoPfam }},
		{Number: StepTaxonomicAssignment, Name: "taxonomic_assignment", Description: "Assign gene taxonomy by LCA",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepHomologySearch}},
		{Number: StepFunctionalAssignment, Name: "functional_assignment", Description: "Assign COG and KEGG functions",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepHomologySearch},
			Skip: func(o domain.Options) bool { return o.NoCOG && o.NoKEGG }},
		{Number: StepBlastxDoublePass, Name: "blastx_doublepass", Description: "Blastx on regions without predicted genes",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepHomologySearch},
			Skip: func(o domain.Options) bool { return !o.DoublePass }},
		{Number: StepContigTaxonomy, Name: "contig_taxonomy", Description: "Assign contig taxonomy from gene consensus",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepTaxonomicAssignment}},
		{Number: StepReadMapping, Name: "read_mapping", Description: "Map reads back to contigs",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepORFPrediction}},
		{Number: StepTaxaAbundance, Name: "taxa_abundance", Description: "Estimate taxa abundances",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepContigTaxonomy, StepReadMapping}},
		{Number: StepFunctionCoverage, Name: "function_coverage", Description: "Estimate function abundances",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepFunctionalAssignment, StepReadMapping}},
		{Number: StepGeneTable, Name: "gene_table", Description: "Build the gene table",
			Modes: allModes, PerSample: independentOnly,
			Requires: []int{StepPfamSearch, StepTaxonomicAssignment, StepFunctionalAssignment, StepReadMapping}},
		{Number: StepBinning, Name: "binning", Description: "Cluster contigs into bins",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepReadMapping}, Skip: skipNoBins},
		{Number: StepBinRefinement, Name: "bin_refinement", Description: "Combine binning results",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepBinning}, Skip: skipNoBins},
		{Number: StepBinTaxonomy, Name: "bin_taxonomy", Description: "Assign bin taxonomy",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepContigTaxonomy, StepBinRefinement}, Skip: skipNoBins},
		{Number: StepBinQuality, Name: "bin_quality", Description: "Estimate bin completeness and contamination",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepBinRefinement}, Skip: skipNoBins},
		{Number: StepBinTable, Name: "bin_table", Description: "Build the bin table",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepBinTaxonomy, StepBinQuality}, Skip: skipNoBins},
		{Number: StepPathwayPrediction, Name: "pathway_prediction", Description: "Predict metabolic pathways in bins",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepFunctionalAssignment, StepBinTable},
			Skip: func(o domain.Options) bool { return o.NoBins || o.NoKEGG }},
		{Number: StepStatistics, Name: "statistics", Description: "Summarize the run",
			Modes: allModes, PerSample: independentOnly, Requires: []int{StepGeneTable}},
	}
}

// StepRegistry is the declarative table of pipeline steps. It is immutable
// after construction and safe for concurrent use.
type StepRegistry struct {
	steps    []domain.Step
	byNumber map[int]int
}

// NewStepRegistry returns the registry of the 21 canonical steps.
func NewStepRegistry() *StepRegistry {
	r, err := NewStepRegistryFrom(canonicalSteps())
	if err != nil {
		// The canonical table is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// NewStepRegistryFrom builds a registry from an arbitrary table. The table
// is validated: numbers must be unique and positive and every prerequisite
// must reference a lower-numbered step.
func NewStepRegistryFrom(steps []domain.Step) (*StepRegistry, error) {
	sorted := slices.Clone(steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	r := &StepRegistry{steps: sorted, byNumber: make(map[int]int, len(sorted))}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate re-checks the table invariants NewStepRegistryFrom enforces.
func (r *StepRegistry) Validate() error {
	_, err := NewStepRegistryFrom(r.steps)
	return err
}

func (r *StepRegistry) validate() error {
	verr := domain.NewValidationError("StepRegistry")
	names := make(map[string]struct{}, len(r.steps))
	for i, s := range r.steps {
		if s.Number < 1 {
			verr.AddError(fmt.Sprintf("step %q has non-positive number %d", s.Name, s.Number))
		}
		if _, dup := r.byNumber[s.Number]; dup {
			verr.AddError(fmt.Sprintf("duplicate step number %d", s.Number))
		}
		if _, dup := names[s.Name]; dup {
			verr.AddError(fmt.Sprintf("duplicate step name %q", s.Name))
		}
		if len(s.Modes) == 0 {
			verr.AddError(fmt.Sprintf("step %d applies to no mode", s.Number))
		}
		r.byNumber[s.Number] = i
		names[s.Name] = struct{}{}
	}
	for _, s := range r.steps {
		for _, req := range s.Requires {
			if req >= s.Number {
				verr.AddError(fmt.Sprintf("step %d requires later step %d", s.Number, req))
			}
			if _, ok := r.byNumber[req]; !ok {
				verr.AddError(fmt.Sprintf("step %d requires unknown step %d", s.Number, req))
			}
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Steps returns every registered step in ascending number order.
func (r *StepRegistry) Steps() []domain.Step {
	return slices.Clone(r.steps)
}

// Step returns the step with number n.
func (r *StepRegistry) Step(n int) (domain.Step, bool) {
	i, ok := r.byNumber[n]
	if !ok {
		return domain.Step{}, false
	}
	return r.steps[i], true
}

// Plan produces the mode-filtered, skip-filtered step sequence in ascending
// number order. Prerequisites that fall outside the plan are dropped, which
// is how an external assembly rewires the sequence to start after the
// assembly steps.
func (r *StepRegistry) Plan(mode domain.Mode, opts domain.Options) []domain.Step {
	planned := make(map[int]struct{}, len(r.steps))
	plan := make([]domain.Step, 0, len(r.steps))
	for _, s := range r.steps {
		if !s.AppliesTo(mode) || s.Skipped(opts) {
			continue
		}
		planned[s.Number] = struct{}{}
		plan = append(plan, s)
	}

	for i := range plan {
		reqs := make([]int, 0, len(plan[i].Requires))
		for _, req := range plan[i].Requires {
			if _, ok := planned[req]; ok {
				reqs = append(reqs, req)
			}
		}
		plan[i].Requires = reqs
	}
	return plan
}

// Lookup resolves a step by number or by name. Names are matched ignoring
// case; an unknown name yields a PlanningError suggesting the closest one.
func (r *StepRegistry) Lookup(ref string) (domain.Step, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		s, ok := r.Step(n)
		if !ok {
			return domain.Step{}, domain.NewPlanningError(n, "unknown step number (valid: %d-%d)", r.steps[0].Number, r.steps[len(r.steps)-1].Number)
		}
		return s, nil
	}

	folded := cases.Fold().String(ref)
	best, bestDist := "", maxSuggestionDistance+1
	for _, s := range r.steps {
		if s.Name == folded {
			return s, nil
		}
		if d := levenshtein.ComputeDistance(folded, s.Name); d < bestDist {
			best, bestDist = s.Name, d
		}
	}
	if best != "" {
		return domain.Step{}, domain.NewPlanningError(0, "unknown step %q (did you mean %q?)", ref, best)
	}
	return domain.Step{}, domain.NewPlanningError(0, "unknown step %q", ref)
}
