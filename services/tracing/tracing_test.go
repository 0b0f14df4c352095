package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()

	shutdown, err := Setup(ctx, "api", conf)
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx), "disabled")

	conf.Tracing.Enabled = true
	conf.Tracing.Endpoint = "localhost:4318"
	conf.Debug = true
	shutdown, err = Setup(ctx, "api", conf)
	require.NoError(t, err)
	assert.NotNil(t, shutdown)
}
