package application

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/testutils"
)

func TestProjectValidators(t *testing.T) {
	v := testutils.NewTestValidator(t, RegisterProjectValidators)

	type target struct {
		Name string `validate:"projectname"`
		Mode string `validate:"sqmmode"`
	}

	tests := []struct {
		name    string
		in      target
		wantErr string
	}{
		{name: "valid", in: target{Name: "hadza_2024-v1.2", Mode: "coassembly"}},
		{name: "mode alias", in: target{Name: "hadza", Mode: "Sequential"}},
		{name: "empty name", in: target{Name: "", Mode: "merged"}, wantErr: "projectname"},
		{name: "hidden name", in: target{Name: ".hadza", Mode: "merged"}, wantErr: "projectname"},
		{name: "path separator", in: target{Name: "a/b", Mode: "merged"}, wantErr: "projectname"},
		{name: "too long", in: target{Name: strings.Repeat("x", maxProjectNameLength+1), Mode: "merged"}, wantErr: "projectname"},
		{name: "unknown mode", in: target{Name: "hadza", Mode: "pooled"}, wantErr: "sqmmode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationToDomain(t *testing.T) {
	v := testutils.NewTestValidator(t, RegisterProjectValidators)

	assert.NoError(t, validationToDomain("ProjectConfig", nil))

	err := validationToDomain("ProjectConfig", v.Struct(&ProjectConfig{Name: "bad/name", Mode: "pooled"}))
	require.Error(t, err)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ProjectConfig", verr.Entity)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	joined := strings.Join(verr.Errors, "\n")
	assert.Contains(t, joined, "ProjectConfig.Version is required")
	assert.Contains(t, joined, `"bad/name" must contain only letters`)
	assert.Contains(t, joined, `"pooled" is not a mode`)
	assert.Contains(t, joined, "ProjectConfig.Samples is required")
}
