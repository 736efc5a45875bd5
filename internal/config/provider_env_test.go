package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvVarProvider_ReturnsOnlySetVariables(t *testing.T) {
	t.Setenv("SCREENINGCOMMS_TEST_SECRET_A", "value-alpha")

	provider := NewEnvVarProvider()
	got, err := provider.GetParametersBatch(context.Background(),
		[]string{"SCREENINGCOMMS_TEST_SECRET_A", "SCREENINGCOMMS_TEST_SECRET_MISSING"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"SCREENINGCOMMS_TEST_SECRET_A": "value-alpha"}, got)
}
