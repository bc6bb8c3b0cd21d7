package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsWrapKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    error
		wantMsg string
	}{
		{
			name:    "config error",
			err:     NewConfigError("mode", "unknown mode x"),
			kind:    ErrConfiguration,
			wantMsg: "configuration error: field=mode: unknown mode x",
		},
		{
			name:    "manifest error with path",
			err:     &ManifestError{Path: "samples.tsv", Line: 3, Reason: "too few columns"},
			kind:    ErrConfiguration,
			wantMsg: "manifest samples.tsv line 3: too few columns",
		},
		{
			name:    "planning error",
			err:     NewPlanningError(22, "unknown step"),
			kind:    ErrPlanning,
			wantMsg: "planning error: step=22: unknown step",
		},
		{
			name:    "planning error without step",
			err:     NewPlanningError(0, "empty plan"),
			kind:    ErrPlanning,
			wantMsg: "planning error: empty plan",
		},
		{
			name:    "restart state error",
			err:     &RestartStateError{Step: 10, Missing: []int{1, 3}},
			kind:    ErrRestartState,
			wantMsg: "restart state error: step 10 requires incomplete steps [1 3] (use --force_overwrite to override)",
		},
		{
			name:    "restart state error with reason",
			err:     &RestartStateError{Step: 99, Reason: "recorded as complete but not a step of coassembly"},
			kind:    ErrRestartState,
			wantMsg: "restart state error: step 99: recorded as complete but not a step of coassembly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, errors.Is(tt.err, tt.kind))
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}
}

func TestMissingInputError(t *testing.T) {
	err := &MissingInputError{Path: "/raw/s1_R1.fq.gz", Sample: "s1", Err: fs.ErrNotExist}

	assert.Equal(t, "missing input: sample=s1, path=/raw/s1_R1.fq.gz, err=file does not exist", err.Error())
	assert.True(t, errors.Is(err, ErrMissingInput))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "Should unwrap to the filesystem cause")
}

func TestStepError(t *testing.T) {
	step := Step{Number: 4, Name: "orf_prediction"}
	cause := fmt.Errorf("prodigal: %w", ErrToolFailure)

	t.Run("project scope", func(t *testing.T) {
		err := NewStepError(step, "", cause)
		assert.Equal(t, "step 4 (orf_prediction) failed: prodigal: tool failure", err.Error())
		assert.True(t, errors.Is(err, ErrToolFailure))
	})

	t.Run("sample scope", func(t *testing.T) {
		err := NewStepError(step, "s2", cause)
		assert.Contains(t, err.Error(), "for sample s2")
	})
}

func TestKind(t *testing.T) {
	t.Run("resource exhaustion wins over tool failure", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", errors.Join(ErrToolFailure, ErrResourceExhaustion))
		assert.Equal(t, ErrResourceExhaustion, Kind(err))
	})

	t.Run("unclassified", func(t *testing.T) {
		assert.Nil(t, Kind(errors.New("boom")))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("Project")
		err.AddError("missing name")

		assert.Equal(t, "validation error for Project: missing name", err.Error())
		assert.True(t, err.HasErrors(), "Should have errors")
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("Tools")
		err.AddError("invalid command")
		err.AddError("missing merger")

		assert.Equal(t, "validation errors for Tools: [invalid command missing merger]", err.Error())
		assert.Len(t, err.Errors, 2)
	})

	t.Run("no errors", func(t *testing.T) {
		assert.False(t, NewValidationError("Empty").HasErrors())
	})
}
