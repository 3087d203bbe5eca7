package flagx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvString(t *testing.T) {
	t.Setenv("RELAY_TEST_STR", "value")
	dst := "default"
	EnvString(&dst, "RELAY_TEST_STR")
	assert.Equal(t, "value", dst)

	t.Setenv("RELAY_TEST_STR", "")
	EnvString(&dst, "RELAY_TEST_STR")
	assert.Equal(t, "value", dst, "empty variables do not override")
}

func TestEnvInt64(t *testing.T) {
	var dst int64 = 1

	require.NoError(t, EnvInt64(&dst, "RELAY_TEST_UNSET_INT"))
	assert.EqualValues(t, 1, dst)

	t.Setenv("RELAY_TEST_INT", "42")
	require.NoError(t, EnvInt64(&dst, "RELAY_TEST_INT"))
	assert.EqualValues(t, 42, dst)

	t.Setenv("RELAY_TEST_INT", "forty-two")
	require.Error(t, EnvInt64(&dst, "RELAY_TEST_INT"))
	assert.EqualValues(t, 42, dst)
}

func TestEnvDuration(t *testing.T) {
	dst := time.Second

	t.Setenv("RELAY_TEST_DUR", "5m")
	require.NoError(t, EnvDuration(&dst, "RELAY_TEST_DUR"))
	assert.Equal(t, 5*time.Minute, dst)

	t.Setenv("RELAY_TEST_DUR", "soon")
	require.Error(t, EnvDuration(&dst, "RELAY_TEST_DUR"))
}
