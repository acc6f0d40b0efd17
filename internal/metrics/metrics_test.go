package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beststop/parking-server/pkg/types"
)

func TestFailuresByStage(t *testing.T) {
	m := New()
	m.RecordFailure(StageFrame)
	m.RecordFailure(StageFrame)
	m.RecordFailure(StageDetect)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues(StageFrame)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(StageDetect)))
	assert.Equal(t, uint64(3), m.CyclesFailed.Load())
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.ObserveCycle(120 * time.Millisecond)
	m.ObserveDetect(80*time.Millisecond, 5)
	m.UpdateResult(types.AggregateResult{
		Total: 4, FreeCount: 3, OccupiedCount: 1,
		Timestamp: time.Unix(1700000000, 0),
	})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "beststop_spots_free 3")
	assert.Contains(t, text, "beststop_spots_occupied 1")
	assert.Contains(t, text, "beststop_cycles_total 1")
	assert.Contains(t, text, "beststop_detections_total 5")
	assert.Contains(t, text, "beststop_last_publish_timestamp_seconds 1.7e+09")
}
