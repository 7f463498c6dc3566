package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), "latency %v", tt.latency)
	}
}

func TestCircularBuffer_FIFOEviction(t *testing.T) {
	buf := NewCircularBuffer[int](3)
	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []int{3, 4, 5}, buf.Items())
}

func TestCircularBuffer_PartiallyFilled(t *testing.T) {
	buf := NewCircularBuffer[string](10)
	buf.Add("a")
	buf.Add("b")

	assert.Equal(t, []string{"a", "b"}, buf.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"protein", "folding"}, ExtractTerms("Protein of Folding"))
	assert.Nil(t, ExtractTerms("   "))
	assert.Nil(t, ExtractTerms("a of to"))
}

func TestQueryMetrics_Record(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{
		Query:       "deep learning",
		Mode:        ModePublications,
		ResultCount: 5,
		Latency:     20 * time.Millisecond,
		Timestamp:   time.Now(),
	})
	m.Record(QueryEvent{
		Query:          "deep learning methods",
		Mode:           ModePublications,
		ResultCount:    0,
		Latency:        600 * time.Millisecond,
		VectorFallback: true,
		Timestamp:      time.Now(),
	})
	m.Record(QueryEvent{
		Query:         "quantum computing",
		Mode:          ModeResearchers,
		ResultCount:   2,
		Latency:       3 * time.Millisecond,
		RerankSkipped: true,
		CacheHit:      true,
		Timestamp:     time.Now(),
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.ModeCounts[ModePublications])
	assert.Equal(t, int64(1), snap.ModeCounts[ModeResearchers])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"deep learning methods"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.VectorFallbackCount)
	assert.Equal(t, int64(1), snap.RerankSkippedCount)
	assert.Equal(t, int64(1), snap.CacheHitCount)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP1000])
}

func TestQueryMetrics_TopTermsSorted(t *testing.T) {
	m := NewQueryMetrics()
	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "neural networks", Mode: ModeMixed, ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "neural chemistry", Mode: ModeMixed, ResultCount: 1})

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "neural", snap.TopTerms[0].Term)
	assert.Equal(t, int64(4), snap.TopTerms[0].Count)
}

func TestQueryMetrics_ZeroResultPercentage(t *testing.T) {
	m := NewQueryMetrics()
	for i := 0; i < 4; i++ {
		m.Record(QueryEvent{Query: fmt.Sprintf("query %d", i), Mode: ModeMixed, ResultCount: i % 2})
	}

	snap := m.Snapshot()
	assert.InDelta(t, 50.0, snap.ZeroResultPercentage(), 0.01)

	empty := &Snapshot{}
	assert.Zero(t, empty.ZeroResultPercentage())
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(QueryEvent{Query: "concurrent search", Mode: ModePublications, ResultCount: 1, Latency: time.Millisecond})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}
