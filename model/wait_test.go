package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/model"
)

func TestHistoricalData_WithNewSample_EvictsOldestBeyondMaxSamples(t *testing.T) {
	h := model.NewHistoricalData("click", 3)
	h = h.WithNewSample(100*time.Millisecond, true)
	h = h.WithNewSample(200*time.Millisecond, true)
	h = h.WithNewSample(300*time.Millisecond, false)
	h = h.WithNewSample(400*time.Millisecond, true)

	require.Len(t, h.Samples, 3)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 300 * time.Millisecond, 400 * time.Millisecond}, h.Samples)
	assert.Equal(t, 4, h.Attempts)
	assert.Equal(t, 3, h.Successes)
}

func TestHistoricalData_WithNewSample_DoesNotMutateReceiver(t *testing.T) {
	original := model.NewHistoricalData("click", 10)
	original = original.WithNewSample(100*time.Millisecond, true)

	updated := original.WithNewSample(200*time.Millisecond, true)

	assert.Len(t, original.Samples, 1)
	assert.Len(t, updated.Samples, 2)
}

func TestHistoricalData_SuccessRate(t *testing.T) {
	h := model.NewHistoricalData("navigate", 10)
	assert.Equal(t, 0.0, h.SuccessRate())

	h = h.WithNewSample(time.Second, true)
	h = h.WithNewSample(time.Second, false)
	h = h.WithNewSample(time.Second, true)
	h = h.WithNewSample(time.Second, true)

	assert.Equal(t, 0.75, h.SuccessRate())
}

func TestHistoricalData_Stats_ComputesPercentilesOverSortedSamples(t *testing.T) {
	h := model.NewHistoricalData("navigate", 10)
	for _, ms := range []time.Duration{400, 100, 300, 200} {
		h = h.WithNewSample(ms*time.Millisecond, true)
	}

	stats := h.Stats()
	assert.Equal(t, 250*time.Millisecond, stats.Avg)
	assert.Equal(t, 200*time.Millisecond, stats.Median)
	assert.Equal(t, 400*time.Millisecond, stats.P95)
	assert.Equal(t, 400*time.Millisecond, stats.P99)
	assert.Greater(t, stats.Stddev, time.Duration(0))
}

func TestHistoricalData_Stats_EmptyRingReturnsZeroValue(t *testing.T) {
	h := model.NewHistoricalData("unused", 10)
	assert.Equal(t, model.DerivedStats{}, h.Stats())
}
