package observability

import (
	"testing"
	"time"

	"github.com/danmuck/tilepad-sdk/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordCall("metrics.test", "get_properties", "ok", 12*time.Millisecond)
	RecordFrame("metrics.test", "out", "call")
	RecordMalformedFrame("metrics.test")
	RecordReconnect("metrics.test")
	SetConnectionState("metrics.test", 2)
	SetPendingRequests("metrics.test", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(calls.WithLabelValues("metrics.test", "get_properties", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(malformedFrames.WithLabelValues("metrics.test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(connectionState.WithLabelValues("metrics.test")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingRequests.WithLabelValues("metrics.test")))
}
