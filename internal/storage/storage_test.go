package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/metrics"
)

type memoryRecorder struct {
	mu      sync.Mutex
	reports []evaluation.EvaluationReport
	block   chan struct{}
}

func (m *memoryRecorder) Record(r evaluation.EvaluationReport) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
}

func (m *memoryRecorder) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

func sampleReport(id string) evaluation.EvaluationReport {
	sim := evaluation.NewSimilarityResult(0.82, 0.7)
	return evaluation.EvaluationReport{
		RunID:          id,
		Workflow:       "summarization_with_validation",
		Capability:     "summarize_document",
		Similarity:     &sim,
		Hallucination:  &evaluation.HallucinationVerdict{Confidence: 0.9, FlaggedClaims: []string{}},
		OverallVerdict: evaluation.VerdictPass,
		Recommendation: "accept",
		Rule:           2,
		Reason:         "ok",
		CreatedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAsyncSink_DeliversInOrder(t *testing.T) {
	next := &memoryRecorder{}
	sink := NewAsyncSink(next, 8, zaptest.NewLogger(t))
	for _, id := range []string{"a", "b", "c"} {
		sink.Record(sampleReport(id))
	}
	sink.Close()

	require.Equal(t, 3, next.len())
	assert.Equal(t, "a", next.reports[0].RunID)
	assert.Equal(t, "c", next.reports[2].RunID)
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	next := &memoryRecorder{block: make(chan struct{})}
	sink := NewAsyncSink(next, 1, nil)
	before := testutil.ToFloat64(metrics.SinkDroppedTotal)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			sink.Record(sampleReport("r"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.SinkDroppedTotal)-before, 8.0)
	close(next.block)
	sink.Close()
	assert.LessOrEqual(t, next.len(), 2)
}

func TestAsyncSink_RecordAfterClose(t *testing.T) {
	next := &memoryRecorder{}
	sink := NewAsyncSink(next, 1, nil)
	sink.Close()
	sink.Close()

	assert.NotPanics(t, func() { sink.Record(sampleReport("late")) })
	assert.Zero(t, next.len())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLogSink(zap.New(core)).Record(sampleReport("run-7"))

	entries := logs.FilterMessage("evaluation report").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-7", fields["run_id"])
	assert.Equal(t, "PASS", fields["verdict"])
	assert.Equal(t, 0.82, fields["similarity"])
}

func TestMultiSink(t *testing.T) {
	a, b := &memoryRecorder{}, &memoryRecorder{}
	MultiSink{a, b}.Record(sampleReport("x"))
	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())
}

func TestReportArgs(t *testing.T) {
	args, err := reportArgs(sampleReport("run-1"))
	require.NoError(t, err)
	require.Len(t, args, 13)
	assert.Equal(t, "run-1", args[0])
	assert.Equal(t, "PASS", args[3])
	assert.Equal(t, sql.NullFloat64{Float64: 0.82, Valid: true}, args[7])
	assert.Equal(t, sql.NullBool{Bool: false, Valid: true}, args[8])
	assert.Equal(t, sql.NullString{}, args[10])

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(args[11].(string)), &doc))
	assert.Equal(t, "accept", doc["recommendation"])

	escalated := evaluation.EvaluationReport{RunID: "run-2", OverallVerdict: evaluation.VerdictEscalate, ValidationError: "judge: bad json"}
	args, err = reportArgs(escalated)
	require.NoError(t, err)
	assert.Equal(t, sql.NullFloat64{}, args[7])
	assert.Equal(t, sql.NullBool{}, args[8])
	assert.Equal(t, sql.NullString{String: "judge: bad json", Valid: true}, args[10])
	assert.False(t, args[12].(time.Time).IsZero())
}

// Requires a reachable PostgreSQL; set AGENTGATE_TEST_DATABASE_URL to run.
func TestReportStore_Postgres(t *testing.T) {
	dsn := os.Getenv("AGENTGATE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AGENTGATE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := OpenReportStore(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	before, err := store.CountByVerdict(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleReport("pg-run")))
	after, err := store.CountByVerdict(ctx)
	require.NoError(t, err)
	assert.Equal(t, before[evaluation.VerdictPass]+1, after[evaluation.VerdictPass])
}

func TestRedisCache_UnavailableServer(t *testing.T) {
	cache := NewRedisCache(context.Background(), RedisOptions{Addr: "127.0.0.1:1"}, zaptest.NewLogger(t))
	defer cache.Close()

	var v map[string]any
	hit, err := cache.Get(context.Background(), "weather:paris:celsius", &v)
	assert.False(t, hit)
	assert.Error(t, err)
	assert.Error(t, cache.Set(context.Background(), "weather:paris:celsius", map[string]any{"t": 1}))
	assert.Error(t, cache.Ping(context.Background()))
}

// Requires a reachable Redis; set AGENTGATE_TEST_REDIS_ADDR to run.
func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("AGENTGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGENTGATE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache := NewRedisCache(ctx, RedisOptions{Addr: addr, TTL: time.Minute}, nil)
	defer cache.Close()

	type rate struct{ Rate float64 }
	require.NoError(t, cache.Set(ctx, "fx:USD:EUR:test", rate{0.92}))
	var got rate
	hit, err := cache.Get(ctx, "fx:USD:EUR:test", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 0.92, got.Rate)

	hit, err = cache.Get(ctx, "fx:missing:key", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
