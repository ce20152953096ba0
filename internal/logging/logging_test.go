package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { _ = InitLogger("info", "text") })

	require.NoError(t, InitLogger("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, GetLogger().Formatter)

	require.NoError(t, InitLogger("warn", ""))
	assert.Equal(t, logrus.WarnLevel, GetLogger().GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, GetLogger().Formatter)
}

func TestInitLoggerRejectsUnknown(t *testing.T) {
	assert.Error(t, InitLogger("loud", "text"))
	assert.Error(t, InitLogger("info", "xml"))
}

func TestGetLoggerIsShared(t *testing.T) {
	assert.Same(t, GetLogger(), GetLogger())
}
