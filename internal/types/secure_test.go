package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "mesh-password-12345"

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(testSecret)

	for _, out := range []string{
		s.String(),
		fmt.Sprintf("%s", s),
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%#v", s),
	} {
		assert.NotContains(t, out, testSecret)
		assert.Contains(t, out, redactedPlaceholder)
	}
}

func TestSecretString_JSON(t *testing.T) {
	payload := struct {
		Password SecretString `json:"password"`
	}{Password: SecretString(testSecret)}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"***REDACTED***"}`, string(data))
}

func TestSecretString_SlogRedacts(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "password", SecretString(testSecret))

	assert.NotContains(t, buf.String(), testSecret)
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	assert.Equal(t, testSecret, s.Unmask())
	assert.True(t, s.IsSet())
	assert.False(t, SecretString("").IsSet())
}
