package cli

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "casaway-speedtest dev")
}

func TestNewLoggerLevel(t *testing.T) {
	defer func() { logLevel = "info" }()

	logLevel = "debug"
	assert.Equal(t, logrus.DebugLevel, newLogger().GetLevel())

	logLevel = "not-a-level"
	assert.Equal(t, logrus.InfoLevel, newLogger().GetLevel())
}

func TestNewLoggerFormatter(t *testing.T) {
	defer func() { logJSON = false }()

	logJSON = true
	_, ok := newLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	logJSON = false
	_, ok = newLogger().Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
