package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentLogger(t *testing.T) {
	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.True(t, logger.Core().Enabled(-1)) // debug level
}

func TestNewProductionLogger(t *testing.T) {
	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.False(t, logger.Core().Enabled(-1))
}

func TestForRunTagsLogger(t *testing.T) {
	base, err := New(false)
	require.NoError(t, err)
	tagged := ForRun(base, "run-123")
	require.NotNil(t, tagged)
	require.NotSame(t, base, tagged)
}
