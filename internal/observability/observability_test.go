package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "proconnect-test", Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	span, ctx := StartClientSpan(context.Background(), "sendMessage", "POST", "/messages")
	assert.NotNil(t, ctx)
	span.SetError(errors.New("boom"))
	span.End()
}

func TestRecordReconcileCounts(t *testing.T) {
	before := testutil.ToFloat64(ReconcileOutcomes.WithLabelValues("matched"))
	RecordReconcile(2, 1, 0, 0)
	assert.Equal(t, before+2, testutil.ToFloat64(ReconcileOutcomes.WithLabelValues("matched")))
}

func TestTrackClientRequestOutcome(t *testing.T) {
	done := TrackClientRequest("listConversations")
	done(errors.New("timeout"))
	assert.Equal(t, 1, testutil.CollectAndCount(ClientRequestLatency))
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	id := GenerateCorrelationID()
	ctx := WithCorrelationID(context.Background(), id)
	assert.Equal(t, id, ExtractCorrelationID(ctx))
	assert.Equal(t, "", ExtractCorrelationID(context.Background()))
}
