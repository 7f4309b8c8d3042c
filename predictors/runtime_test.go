package predictors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/globus-compute/central-scheduler/core"
)

func TestRollingAverageDefaultsWhenUnobserved(t *testing.T) {
	p := NewRollingAverage(3, 1)
	assert.Equal(t, defaultRuntimeEstimate, p.Predict("fn", "endpoint-a"))
	assert.False(t, p.HasLearned("fn", "endpoint-a"))
}

func TestRollingAverageAveragesRecentSamples(t *testing.T) {
	p := NewRollingAverage(3, 1)
	record := core.PendingRecord{FunctionID: "fn", Endpoint: "endpoint-a"}

	p.Update(record, 1*time.Second)
	p.Update(record, 2*time.Second)
	p.Update(record, 3*time.Second)

	assert.Equal(t, 2*time.Second, p.Predict("fn", "endpoint-a"))
	assert.True(t, p.HasLearned("fn", "endpoint-a"))
}

func TestRollingAverageWindowSlides(t *testing.T) {
	p := NewRollingAverage(2, 1)
	record := core.PendingRecord{FunctionID: "fn", Endpoint: "endpoint-a"}

	p.Update(record, 10*time.Second)
	p.Update(record, 2*time.Second)
	p.Update(record, 4*time.Second)

	assert.Equal(t, 3*time.Second, p.Predict("fn", "endpoint-a"))
}

func TestRollingAverageKeepsPairsIndependent(t *testing.T) {
	p := NewRollingAverage(3, 1)
	p.Update(core.PendingRecord{FunctionID: "fn-1", Endpoint: "endpoint-a"}, 1*time.Second)
	p.Update(core.PendingRecord{FunctionID: "fn-2", Endpoint: "endpoint-a"}, 9*time.Second)

	assert.Equal(t, 1*time.Second, p.Predict("fn-1", "endpoint-a"))
	assert.Equal(t, 9*time.Second, p.Predict("fn-2", "endpoint-a"))
}
