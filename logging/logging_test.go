package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	L().Debug("tile requested", zap.String("tile", "1/0/0"))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "1/0/0", logs.All()[0].ContextMap()["tile"])

	SetLogger(nil)
	L().Debug("dropped")
	assert.Equal(t, 1, logs.Len())
}
