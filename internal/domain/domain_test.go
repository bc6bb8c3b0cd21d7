package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "independent", want: ModeIndependent},
		{in: "sequential", want: ModeIndependent},
		{in: "CoAssembly", want: ModeCoassembly},
		{in: " merged ", want: ModeMerged},
		{in: "SEQMERGE", want: ModeSeqMerge},
		{in: "pooled", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModePredicates(t *testing.T) {
	assert.True(t, ModeIndependent.AssemblesPerSample())
	assert.False(t, ModeCoassembly.AssemblesPerSample())
	assert.True(t, ModeSeqMerge.MergesAssemblies())
	assert.True(t, ModeMerged.MergesAssemblies())
	assert.False(t, ModeIndependent.MergesAssemblies())
	assert.False(t, Mode("pooled").Valid())
}

func TestSampleSelections(t *testing.T) {
	samples := []Sample{
		{ID: "a"},
		{ID: "b", NoAssembly: true},
		{ID: "c", NoBinning: true},
		{ID: "d", NoAssembly: true, NoBinning: true},
	}

	assert.Equal(t, []string{"a", "c"}, SampleIDs(AssemblySamples(samples)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, SampleIDs(MappingSamples(samples)))
	assert.Equal(t, []string{"a", "b"}, SampleIDs(BinningSamples(samples)))
}

func TestSampleFiles(t *testing.T) {
	s := Sample{ID: "s1", Files: []ReadFile{
		{Path: "s1_R1.fq", Role: PairFirst},
		{Path: "s1_R2.fq", Role: PairSecond},
		{Path: "s1b_R1.fq", Role: PairFirst},
	}}

	assert.Equal(t, []string{"s1_R1.fq", "s1b_R1.fq"}, s.FilesWithRole(PairFirst))
	assert.Equal(t, []string{"s1_R2.fq"}, s.FilesWithRole(PairSecond))
	assert.Equal(t, []string{"s1_R1.fq", "s1_R2.fq", "s1b_R1.fq"}, s.Paths())
}

func TestProjectValidate(t *testing.T) {
	valid := func() Project {
		return Project{
			Name:    "p1",
			Root:    "/data",
			Mode:    ModeCoassembly,
			Samples: []Sample{{ID: "a"}},
			Options: DefaultOptions(),
		}
	}

	p := valid()
	require.NoError(t, p.Validate())
	assert.Equal(t, "/data/p1", p.Dir())

	tests := []struct {
		name   string
		mutate func(p *Project)
	}{
		{"missing name", func(p *Project) { p.Name = "" }},
		{"bad mode", func(p *Project) { p.Mode = "x" }},
		{"no samples", func(p *Project) { p.Samples = nil }},
		{"all noassembly", func(p *Project) { p.Samples = []Sample{{ID: "a", NoAssembly: true}} }},
		{"zero threads", func(p *Project) { p.Options.Threads = 0 }},
		{"zero workers", func(p *Project) { p.Options.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}

	t.Run("external assembly allows all noassembly", func(t *testing.T) {
		p := valid()
		p.Samples = []Sample{{ID: "a", NoAssembly: true}}
		p.Options.ExternalAssembly = "/ext/contigs.fa"
		assert.NoError(t, p.Validate())
	})
}

func TestProgressRecord(t *testing.T) {
	r := NewProgressRecord()
	assert.Equal(t, 0, r.Highest())
	assert.False(t, r.IsComplete(1))

	now := time.Now()
	r.Completed[3] = now
	r.Completed[1] = now
	r.Completed[2] = now

	assert.Equal(t, 3, r.Highest())
	assert.Equal(t, []int{1, 2, 3}, r.Steps())
	assert.True(t, r.IsComplete(2))

	c := r.Clone()
	delete(c.Completed, 3)
	assert.True(t, r.IsComplete(3), "Clone must not share storage")

	assert.Equal(t, []int{2, 3}, r.Invalidate(2))
	assert.Equal(t, []int{1}, r.Steps())
	assert.Empty(t, r.Invalidate(5))
}

func TestStepScope(t *testing.T) {
	s := Step{
		Number:    1,
		Modes:     []Mode{ModeIndependent, ModeCoassembly},
		PerSample: []Mode{ModeIndependent},
		Skip:      func(o Options) bool { return o.HasExternalAssembly() },
	}

	assert.True(t, s.AppliesTo(ModeCoassembly))
	assert.False(t, s.AppliesTo(ModeSeqMerge))
	assert.Equal(t, ScopePerSample, s.ScopeIn(ModeIndependent))
	assert.Equal(t, ScopeProject, s.ScopeIn(ModeCoassembly))
	assert.True(t, s.Skipped(Options{ExternalAssembly: "x.fa"}))
	assert.False(t, Step{}.Skipped(Options{}))
}

func TestPairKey(t *testing.T) {
	k := NewPairKey("s2", "s1")
	assert.Equal(t, PairKey{A: "s1", B: "s2"}, k)
	assert.Equal(t, k, NewPairKey("s1", "s2"))
	assert.True(t, k.Has("s2"))
	assert.False(t, k.Has("s3"))
	assert.Equal(t, "s1|s2", k.String())

	assert.True(t, NewPairKey("a", "c").Less(NewPairKey("b", "c")))
	assert.True(t, NewPairKey("a", "b").Less(NewPairKey("a", "c")))
	assert.False(t, NewPairKey("a", "c").Less(NewPairKey("a", "c")))
}
