package application

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
	"github.com/ahrav/go-sqm/internal/testutils"
)

func readSample(id string, flags ...string) domain.Sample {
	s := domain.Sample{
		ID: id,
		Files: []domain.ReadFile{
			{Path: "/raw/" + id + "_1.fq.gz", Role: domain.PairFirst},
			{Path: "/raw/" + id + "_2.fq.gz", Role: domain.PairSecond},
		},
	}
	for _, f := range flags {
		switch f {
		case "noassembly":
			s.NoAssembly = true
		case "nobinning":
			s.NoBinning = true
		}
	}
	return s
}

func testProject(t *testing.T, mode domain.Mode, samples ...domain.Sample) *domain.Project {
	t.Helper()
	return &domain.Project{
		Name:    "hadza",
		Root:    t.TempDir(),
		Mode:    mode,
		Samples: samples,
		Options: domain.DefaultOptions(),
	}
}

func mustStep(t *testing.T, n int) domain.Step {
	t.Helper()
	step, ok := NewStepRegistry().Step(n)
	require.True(t, ok)
	return step
}

func newTestDispatcher(t *testing.T, tools *testutils.MockToolProvider, merger *testutils.RecordingMerger, cmp *testutils.MatrixComparator) *StepDispatcher {
	t.Helper()
	opts := DispatcherOptions{}
	if merger != nil {
		opts.Merger = merger
	}
	if cmp != nil {
		opts.Comparator = cmp
	}
	d, err := NewStepDispatcher(tools, opts)
	require.NoError(t, err)
	return d
}

func TestStepDispatcher_Assembly(t *testing.T) {
	samples := []domain.Sample{readSample("s1"), readSample("s2", "noassembly"), readSample("s3", "nobinning")}

	tests := []struct {
		name        string
		mode        domain.Mode
		wantSamples [][]string
	}{
		{name: "independent runs per assembly sample", mode: domain.ModeIndependent, wantSamples: [][]string{{"s1"}, {"s3"}}},
		{name: "coassembly pools reads once", mode: domain.ModeCoassembly, wantSamples: [][]string{{"s1", "s3"}}},
		{name: "merged runs per assembly sample", mode: domain.ModeMerged, wantSamples: [][]string{{"s1"}, {"s3"}}},
		{name: "seqmerge runs per assembly sample", mode: domain.ModeSeqMerge, wantSamples: [][]string{{"s1"}, {"s3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := testutils.NewMockToolProvider()
			project := testProject(t, tt.mode, samples...)
			project.Options.Workers = 4

			n, err := newTestDispatcher(t, tools, nil, nil).Dispatch(context.Background(), project, mustStep(t, StepAssembly))
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantSamples), n)

			calls := tools.CallsForStep(StepAssembly)
			require.Len(t, calls, len(tt.wantSamples))
			for i, c := range calls {
				assert.Equal(t, tt.wantSamples[i], c.Invocation.Samples)
				assert.Equal(t, "assembly", c.Tool)
				assert.Equal(t, "hadza", c.Invocation.Project)
				assert.Equal(t, 12, c.Invocation.Threads)
			}
		})
	}
}

func TestStepDispatcher_CoassemblyInputs(t *testing.T) {
	tools := testutils.NewMockToolProvider()
	project := testProject(t, domain.ModeCoassembly, readSample("s1"), readSample("s2", "noassembly"), readSample("s3", "nobinning"))
	layout := NewLayout(project)
	d := newTestDispatcher(t, tools, nil, nil)

	for _, n := range []int{StepAssembly, StepReadMapping, StepBinning, StepStatistics} {
		_, err := d.Dispatch(context.Background(), project, mustStep(t, n))
		require.NoError(t, err)
	}

	assembly := tools.CallsForStep(StepAssembly)[0].Invocation
	assert.Equal(t, []string{"/raw/s1_1.fq.gz", "/raw/s1_2.fq.gz", "/raw/s3_1.fq.gz", "/raw/s3_2.fq.gz"}, assembly.Inputs)
	assert.Equal(t, layout.PooledAssembly(), assembly.Output)

	mapping := tools.CallsForStep(StepReadMapping)
	require.Len(t, mapping, 1)
	assert.Equal(t, []string{"s1", "s2", "s3"}, mapping[0].Invocation.Samples, "every sample is mapped")
	assert.Equal(t, layout.PooledAssembly(), mapping[0].Invocation.Inputs[0])
	assert.Len(t, mapping[0].Invocation.Inputs, 7)

	binning := tools.CallsForStep(StepBinning)
	require.Len(t, binning, 1)
	assert.Equal(t, []string{"s1", "s2"}, binning[0].Invocation.Samples, "nobinning samples are excluded")

	stats := tools.CallsForStep(StepStatistics)[0].Invocation
	assert.Equal(t, filepath.Join(project.Dir(), "21.statistics", "hadza"), stats.Output)
}

func TestStepDispatcher_IndependentPerSampleSteps(t *testing.T) {
	tools := testutils.NewMockToolProvider()
	project := testProject(t, domain.ModeIndependent, readSample("s1"), readSample("s2", "nobinning"), readSample("s3", "noassembly"))
	layout := NewLayout(project)
	d := newTestDispatcher(t, tools, nil, nil)

	n, err := d.Dispatch(context.Background(), project, mustStep(t, StepORFPrediction))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	calls := tools.CallsForStep(StepORFPrediction)
	require.Len(t, calls, 2)
	assert.Equal(t, "s1", calls[0].Invocation.Sample)
	assert.Equal(t, []string{layout.SampleAssembly("s1")}, calls[0].Invocation.Inputs)
	assert.Equal(t, filepath.Join(project.Dir(), "04.orf_prediction", "s2"), calls[1].Invocation.Output)

	n, err = d.Dispatch(context.Background(), project, mustStep(t, StepBinning))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "nobinning and noassembly samples are not binned")
	assert.Equal(t, "s1", tools.CallsForStep(StepBinning)[0].Invocation.Sample)
}

func TestStepDispatcher_FanOutFailures(t *testing.T) {
	t.Run("single failure is a step error for the sample", func(t *testing.T) {
		tools := testutils.NewMockToolProvider()
		tools.FailStep(StepAssembly, "s2", errors.New("megahit exited 1"))
		project := testProject(t, domain.ModeIndependent, readSample("s1"), readSample("s2"), readSample("s3"))

		_, err := newTestDispatcher(t, tools, nil, nil).Dispatch(context.Background(), project, mustStep(t, StepAssembly))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrToolFailure))

		var stepErr *domain.StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, StepAssembly, stepErr.Step)
		assert.Equal(t, "s2", stepErr.Sample)
		assert.LessOrEqual(t, len(tools.CallsForStep(StepAssembly)), 3)
	})

	t.Run("every failure is reported", func(t *testing.T) {
		tools := testutils.NewMockToolProvider()
		project := testProject(t, domain.ModeIndependent, readSample("s1"), readSample("s2"))
		project.Options.Workers = 2

		// Hold both invocations until each has launched, then fail them.
		started := make(chan struct{}, 2)
		release := make(chan struct{})
		tools.OnRun = func(ctx context.Context, inv ports.Invocation) error {
			started <- struct{}{}
			<-release
			return errors.New("out of disk")
		}
		go func() {
			<-started
			<-started
			close(release)
		}()

		n, err := newTestDispatcher(t, tools, nil, nil).Dispatch(context.Background(), project, mustStep(t, StepAssembly))
		require.Error(t, err)
		assert.Equal(t, 2, n)
		assert.Contains(t, err.Error(), "failed for 2 samples")
		assert.True(t, errors.Is(err, domain.ErrToolFailure))
	})

	t.Run("canceled context launches nothing", func(t *testing.T) {
		tools := testutils.NewMockToolProvider()
		project := testProject(t, domain.ModeIndependent, readSample("s1"), readSample("s2"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		n, err := newTestDispatcher(t, tools, nil, nil).Dispatch(ctx, project, mustStep(t, StepAssembly))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Zero(t, n)
		assert.Empty(t, tools.Calls())
	})
}

func TestStepDispatcher_MergeAssemblies(t *testing.T) {
	samples := []domain.Sample{readSample("s1"), readSample("s2"), readSample("s3"), readSample("s4", "noassembly")}

	t.Run("merged mode merges once in bulk", func(t *testing.T) {
		merger := &testutils.RecordingMerger{}
		project := testProject(t, domain.ModeMerged, samples...)

		n, err := newTestDispatcher(t, testutils.NewMockToolProvider(), merger, nil).
			Dispatch(context.Background(), project, mustStep(t, StepMergeAssemblies))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		calls := merger.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"s1", "s2", "s3"}, calls[0].Inputs)
		assert.Equal(t, NewLayout(project).Contigs(""), calls[0].Output)
	})

	t.Run("seqmerge runs the merge schedule", func(t *testing.T) {
		merger := &testutils.RecordingMerger{}
		cmp := testutils.NewMatrixComparator(map[domain.PairKey]float64{domain.NewPairKey("s2", "s3"): 95})
		project := testProject(t, domain.ModeSeqMerge, samples...)

		n, err := newTestDispatcher(t, testutils.NewMockToolProvider(), merger, cmp).
			Dispatch(context.Background(), project, mustStep(t, StepMergeAssemblies))
		require.NoError(t, err)
		// 3 initial comparisons, 1 fresh comparison and 2 merges.
		assert.Equal(t, 6, n)

		calls := merger.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, []string{"s2", "s3"}, calls[0].Inputs)
		assert.Equal(t, NewLayout(project).Contigs(""), calls[1].Output)
		assert.Equal(t, filepath.Join(project.Dir(), "02.merge_assemblies", "merged2.fasta"), calls[1].Output)
	})

	t.Run("single assembly needs no merge", func(t *testing.T) {
		merger := &testutils.RecordingMerger{}
		project := testProject(t, domain.ModeSeqMerge, readSample("s1"), readSample("s2", "noassembly"))

		n, err := newTestDispatcher(t, testutils.NewMockToolProvider(), merger, testutils.NewMatrixComparator(nil)).
			Dispatch(context.Background(), project, mustStep(t, StepMergeAssemblies))
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, merger.Calls())
		assert.Equal(t, NewLayout(project).SampleAssembly("s1"), NewLayout(project).Contigs(""))
	})

	t.Run("merger failure", func(t *testing.T) {
		merger := &testutils.RecordingMerger{Err: ports.NewToolError("merger", 1, errors.New("exit status 1"))}
		project := testProject(t, domain.ModeMerged, samples...)

		_, err := newTestDispatcher(t, testutils.NewMockToolProvider(), merger, nil).
			Dispatch(context.Background(), project, mustStep(t, StepMergeAssemblies))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrToolFailure))
	})
}

func TestStepDispatcher_Preflight(t *testing.T) {
	registry := NewStepRegistry()

	tests := []struct {
		name       string
		mode       domain.Mode
		merger     bool
		comparator bool
		unconfig   []string
		wantErr    string
	}{
		{name: "coassembly fully configured", mode: domain.ModeCoassembly},
		{name: "missing step tool", mode: domain.ModeCoassembly, unconfig: []string{"binning", "statistics"}, wantErr: "binning, statistics"},
		{name: "merged without merger", mode: domain.ModeMerged, wantErr: "merger"},
		{name: "merged with merger", mode: domain.ModeMerged, merger: true},
		{name: "seqmerge without comparator", mode: domain.ModeSeqMerge, merger: true, wantErr: "comparator"},
		{name: "seqmerge fully configured", mode: domain.ModeSeqMerge, merger: true, comparator: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := testutils.NewMockToolProvider()
			for _, name := range tt.unconfig {
				tools.Unconfigure(name)
			}
			var merger *testutils.RecordingMerger
			if tt.merger {
				merger = &testutils.RecordingMerger{}
			}
			var cmp *testutils.MatrixComparator
			if tt.comparator {
				cmp = testutils.NewMatrixComparator(nil)
			}
			project := testProject(t, tt.mode, readSample("s1"), readSample("s2"))

			err := newTestDispatcher(t, tools, merger, cmp).Preflight(project, registry.Plan(tt.mode, project.Options))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, tools.Calls())
		})
	}
}

func TestLayout_Contigs(t *testing.T) {
	samples := []domain.Sample{readSample("s1"), readSample("s2"), readSample("s3")}

	tests := []struct {
		name     string
		mode     domain.Mode
		external string
		want     string
	}{
		{name: "independent", mode: domain.ModeIndependent, want: "01.assembly/s2.fasta"},
		{name: "coassembly", mode: domain.ModeCoassembly, want: "01.assembly/hadza.fasta"},
		{name: "merged", mode: domain.ModeMerged, want: "02.merge_assemblies/hadza.fasta"},
		{name: "seqmerge", mode: domain.ModeSeqMerge, want: "02.merge_assemblies/merged2.fasta"},
		{name: "external assembly", mode: domain.ModeSeqMerge, external: "/data/contigs.fa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := testProject(t, tt.mode, samples...)
			project.Options.ExternalAssembly = tt.external

			got := NewLayout(project).Contigs("s2")
			if tt.external != "" {
				assert.Equal(t, tt.external, got)
				return
			}
			assert.Equal(t, filepath.Join(project.Dir(), tt.want), got)
		})
	}
}
