// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "noop-span")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderEnabledRecordsSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled: true,
		Service: "cloudcore-test",
		Version: "v-test",
	})
	require.NoError(t, err)

	ctx, span := Tracer("test").Start(context.Background(), "recorded-span")
	assert.True(t, span.IsRecording())
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().TraceID().IsValid())

	_, child := Tracer("test").Start(ctx, "child-span")
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID(),
		"child inherits the parent trace")
	child.End()
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}
