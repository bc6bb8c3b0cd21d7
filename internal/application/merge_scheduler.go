package application

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

// MergedUnitPrefix prefixes the identifiers of units produced by merging.
// Input identifiers must not take the form of a merged unit identifier.
const MergedUnitPrefix = "merged"

// isMergedID reports whether id is MergedUnitPrefix followed by a round
// number.
func isMergedID(id string) bool {
	round, ok := strings.CutPrefix(id, MergedUnitPrefix)
	if !ok || round == "" {
		return false
	}
	for _, r := range round {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MergeSchedulerConfig configures a MergeScheduler.
type MergeSchedulerConfig struct {
	// Workers bounds concurrent similarity comparisons within one round.
	Workers int

	// OutputDir receives the contig files of merged units.
	OutputDir string

	// Metrics receives comparison and merge observations. Optional.
	Metrics ports.MetricsCollector
}

// MergeResult is the outcome of a complete merge sequence.
type MergeResult struct {
	// Final is the single remaining assembly unit.
	Final domain.AssemblyUnit

	// Rounds lists merge decisions in the order they were made.
	Rounds []domain.MergeRound

	// Comparisons counts similarity evaluations across all rounds.
	Comparisons int
}

// MergeScheduler reduces N independent assemblies to one by repeatedly
// merging the most similar pair. Similarities are computed once for all
// pairs and then only between each freshly merged unit and the remaining
// units, so a full sequence costs O(N²) comparisons.
//
// The merge sequence is atomic from the pipeline's point of view: any
// comparator or merger failure aborts it and nothing is checkpointed.
type MergeScheduler struct {
	comparator ports.SimilarityComparator
	merger     ports.ContigMerger
	config     MergeSchedulerConfig
}

// NewMergeScheduler creates a scheduler backed by the given collaborators.
func NewMergeScheduler(
	comparator ports.SimilarityComparator,
	merger ports.ContigMerger,
	config MergeSchedulerConfig,
) (*MergeScheduler, error) {
	if comparator == nil {
		return nil, fmt.Errorf("merge scheduler: comparator is required")
	}
	if merger == nil {
		return nil, fmt.Errorf("merge scheduler: merger is required")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Metrics == nil {
		config.Metrics = ports.NopMetrics{}
	}
	return &MergeScheduler{comparator: comparator, merger: merger, config: config}, nil
}

// mergeArena holds every unit created during one sequence, indexed by ID,
// plus the currently active set and its similarity matrix. Merged children
// leave the active set but are never linked to their parent.
type mergeArena struct {
	units  map[string]domain.AssemblyUnit
	active map[string]struct{}
	scores map[domain.PairKey]float64
}

func newMergeArena(units []domain.AssemblyUnit) (*mergeArena, error) {
	a := &mergeArena{
		units:  make(map[string]domain.AssemblyUnit, 2*len(units)),
		active: make(map[string]struct{}, len(units)),
		scores: make(map[domain.PairKey]float64, len(units)*len(units)/2),
	}
	for _, u := range units {
		if u.ID == "" {
			return nil, domain.NewConfigError("assemblies", "assembly unit with empty identifier")
		}
		if _, dup := a.units[u.ID]; dup {
			return nil, domain.NewConfigError("assemblies", fmt.Sprintf("duplicate assembly unit %q", u.ID))
		}
		a.units[u.ID] = u
		a.active[u.ID] = struct{}{}
	}
	return a, nil
}

// activeIDs returns the active identifiers in sorted order so that work is
// always issued deterministically.
func (a *mergeArena) activeIDs() []string {
	ids := make([]string, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// best returns the pair with the highest score; ties go to the
// lexicographically lowest pair key.
func (a *mergeArena) best() (domain.PairKey, float64, bool) {
	var (
		bestKey   domain.PairKey
		bestScore float64
		found     bool
	)
	for k, s := range a.scores {
		if !found || s > bestScore || (s == bestScore && k.Less(bestKey)) {
			bestKey, bestScore, found = k, s, true
		}
	}
	return bestKey, bestScore, found
}

// retire removes id from the active set together with its matrix entries.
func (a *mergeArena) retire(id string) {
	delete(a.active, id)
	for other := range a.active {
		delete(a.scores, domain.NewPairKey(id, other))
	}
}

// Run merges units until exactly one remains. A single unit is returned
// unchanged with no rounds.
func (m *MergeScheduler) Run(ctx context.Context, units []domain.AssemblyUnit) (MergeResult, error) {
	logger := ctxlog.FromContext(ctx)
	ctx, span := otel.Tracer("sqm/merge").Start(ctx, "MergeScheduler.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("merge.units", len(units)))

	if len(units) == 0 {
		err := domain.NewConfigError("assemblies", "no assembly units to merge")
		span.SetStatus(codes.Error, err.Error())
		return MergeResult{}, err
	}
	arena, err := newMergeArena(units)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return MergeResult{}, err
	}
	for id := range arena.units {
		if isMergedID(id) {
			err := domain.NewConfigError("assemblies", fmt.Sprintf("identifier %q collides with merged unit names", id))
			span.SetStatus(codes.Error, err.Error())
			return MergeResult{}, err
		}
	}

	result := MergeResult{}
	if len(units) == 1 {
		result.Final = units[0]
		return result, nil
	}

	ids := arena.activeIDs()
	pairs := make([]domain.PairKey, 0, len(ids)*(len(ids)-1)/2)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, domain.NewPairKey(ids[i], ids[j]))
		}
	}
	logger.Info("computing initial similarity matrix", "units", len(ids), "pairs", len(pairs))
	if err := m.compare(ctx, arena, pairs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return MergeResult{}, err
	}
	result.Comparisons += len(pairs)

	total := len(units) - 1
	for round := 1; round <= total; round++ {
		merged, err := m.mergeRound(ctx, arena, round)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return MergeResult{}, err
		}
		result.Rounds = append(result.Rounds, merged)

		remaining := arena.activeIDs()
		fresh := make([]domain.PairKey, 0, len(remaining))
		for _, id := range remaining {
			if id != merged.Result.ID {
				fresh = append(fresh, domain.NewPairKey(merged.Result.ID, id))
			}
		}
		if err := m.compare(ctx, arena, fresh); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return MergeResult{}, err
		}
		result.Comparisons += len(fresh)
	}

	finalIDs := arena.activeIDs()
	if len(finalIDs) != 1 {
		err := domain.NewPlanningError(StepMergeAssemblies, "merge ended with %d units", len(finalIDs))
		span.SetStatus(codes.Error, err.Error())
		return MergeResult{}, err
	}
	result.Final = arena.units[finalIDs[0]]
	span.SetAttributes(
		attribute.String("merge.final", result.Final.ID),
		attribute.Int("merge.comparisons", result.Comparisons),
	)
	span.SetStatus(codes.Ok, "merge sequence completed")
	return result, nil
}

// mergeRound merges the currently most similar pair and activates the result.
func (m *MergeScheduler) mergeRound(ctx context.Context, arena *mergeArena, round int) (domain.MergeRound, error) {
	key, score, ok := arena.best()
	if !ok {
		return domain.MergeRound{}, domain.NewPlanningError(StepMergeAssemblies, "round %d: similarity matrix is empty", round)
	}
	left, right := arena.units[key.A], arena.units[key.B]

	ctx, span := otel.Tracer("sqm/merge").Start(ctx, "MergeScheduler.round")
	defer span.End()
	span.SetAttributes(
		attribute.Int("merge.round", round),
		attribute.String("merge.left", left.ID),
		attribute.String("merge.right", right.ID),
		attribute.Float64("merge.score", score),
	)

	id := fmt.Sprintf("%s%d", MergedUnitPrefix, round)
	unit := domain.AssemblyUnit{
		ID:         id,
		Contigs:    filepath.Join(m.config.OutputDir, id+".fasta"),
		Generation: max(left.Generation, right.Generation) + 1,
		Samples:    mergeSampleLists(left.Samples, right.Samples),
	}

	start := time.Now()
	if err := m.merger.Merge(ctx, unit.Contigs, []domain.AssemblyUnit{left, right}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.MergeRound{}, fmt.Errorf("merge round %d (%s + %s): %w", round, left.ID, right.ID, err)
	}
	m.config.Metrics.RecordLatency("merge_round", time.Since(start), map[string]string{"unit": "merge"})
	m.config.Metrics.RecordHistogram("merge_similarity", score, map[string]string{"unit": "merge"})
	m.config.Metrics.RecordCounter("merge_rounds_total", 1, map[string]string{"unit": "merge"})

	arena.retire(left.ID)
	arena.retire(right.ID)
	arena.units[id] = unit
	arena.active[id] = struct{}{}

	ctxlog.FromContext(ctx).Info("merged assemblies",
		"round", round, "left", left.ID, "right", right.ID, "score", score,
		"result", id, "generation", unit.Generation, "remaining", len(arena.active))
	return domain.MergeRound{Round: round, Pair: key, Score: score, Result: unit}, nil
}

// compare scores pairs concurrently and stores the results in the matrix.
// Results land in a slice indexed like pairs, so no locking is needed.
func (m *MergeScheduler) compare(ctx context.Context, arena *mergeArena, pairs []domain.PairKey) error {
	if len(pairs) == 0 {
		return nil
	}
	scores := make([]float64, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)
	for i, p := range pairs {
		a, b := arena.units[p.A], arena.units[p.B]
		g.Go(func() error {
			start := time.Now()
			s, err := m.comparator.Compare(gctx, a, b)
			if err != nil {
				return fmt.Errorf("compare %s with %s: %w", a.ID, b.ID, err)
			}
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return fmt.Errorf("compare %s with %s: score %v: %w", a.ID, b.ID, s, ports.ErrInvalidToolOutput)
			}
			m.config.Metrics.RecordLatency("similarity_comparison", time.Since(start), map[string]string{"unit": "merge"})
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range pairs {
		arena.scores[p] = scores[i]
	}
	return nil
}

func mergeSampleLists(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
