package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackEvent_CountsByTypeAndOutcome(t *testing.T) {
	before := testutil.ToFloat64(eventsProcessed.WithLabelValues("payment_intent.succeeded", "created"))

	TrackEvent("payment_intent.succeeded", "created")
	TrackEvent("payment_intent.succeeded", "created")

	after := testutil.ToFloat64(eventsProcessed.WithLabelValues("payment_intent.succeeded", "created"))
	assert.Equal(t, before+2, after)
}

func TestTrackError_ByKind(t *testing.T) {
	before := testutil.ToFloat64(pipelineErrors.WithLabelValues("missing_data"))
	TrackError("missing_data")
	assert.Equal(t, before+1, testutil.ToFloat64(pipelineErrors.WithLabelValues("missing_data")))
}

func TestSampleQueueDepth_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		SampleQueueDepth(ctx, func() int { return 7 }, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(workerQueueDepth) == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop")
	}
}
