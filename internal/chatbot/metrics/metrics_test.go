package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMetrics_RecordQuery(t *testing.T) {
	m := NewChatMetrics()

	m.RecordQuery("canned", nil)
	m.RecordQuery("cached", nil)
	m.RecordQuery("no_context", nil)
	m.RecordQuery("generated", nil)
	m.RecordQuery("", errors.New("boom"))

	stats := m.Stats()
	queries := stats["queries"].(map[string]any)
	assert.Equal(t, uint64(5), queries["total"])
	assert.Equal(t, uint64(1), queries["canned"])
	assert.Equal(t, uint64(1), queries["cached"])
	assert.Equal(t, uint64(1), queries["no_context"])
	assert.Equal(t, uint64(1), queries["generated"])
	assert.Equal(t, uint64(1), queries["errors"])
}

func TestChatMetrics_RecordRetrieval(t *testing.T) {
	m := NewChatMetrics()

	m.RecordRetrieval(100*time.Millisecond, nil)
	m.RecordRetrieval(300*time.Millisecond, nil)
	m.RecordRetrieval(0, errors.New("boom"))

	stats := m.Stats()
	retrieval := stats["retrieval"].(map[string]any)
	assert.Equal(t, uint64(3), retrieval["total"])
	assert.Equal(t, uint64(1), retrieval["errors"])
	assert.InDelta(t, 0.4, retrieval["total_duration_secs"].(float64), 0.001)
	// 平均耗时按总次数分摊
	assert.InDelta(t, 0.4/3, retrieval["avg_duration_secs"].(float64), 0.001)
}

func TestChatMetrics_RecordLLMCall(t *testing.T) {
	m := NewChatMetrics()

	m.RecordLLMCall(2*time.Second, nil)
	m.RecordLLMCall(0, errors.New("boom"))

	stats := m.Stats()
	llm := stats["llm"].(map[string]any)
	assert.Equal(t, uint64(2), llm["calls_total"])
	assert.Equal(t, uint64(1), llm["errors"])
	assert.InDelta(t, 2.0, llm["total_duration_secs"].(float64), 0.001)
}

func TestChatMetrics_RecordBus(t *testing.T) {
	m := NewChatMetrics()

	m.RecordBusQuery()
	m.RecordBusQuery()
	m.RecordBusResponse(true)
	m.RecordBusResponse(false)

	stats := m.Stats()
	bus := stats["bus"].(map[string]any)
	assert.Equal(t, uint64(2), bus["queries"])
	assert.Equal(t, uint64(2), bus["responses"])
	assert.Equal(t, uint64(1), bus["failures"])
}

func TestChatMetrics_RecordIngest(t *testing.T) {
	m := NewChatMetrics()

	m.RecordIngest(1, 12, nil)
	// 失败时已入库的分块仍然计数
	m.RecordIngest(1, 3, errors.New("boom"))

	stats := m.Stats()
	ingest := stats["ingest"].(map[string]any)
	assert.Equal(t, uint64(2), ingest["documents"])
	assert.Equal(t, uint64(15), ingest["chunks"])
	assert.Equal(t, uint64(1), ingest["errors"])
}

func TestChatMetrics_Export(t *testing.T) {
	m := NewChatMetrics()
	m.RecordQuery("generated", nil)
	m.RecordBusQuery()

	out := m.Export("docschat")

	assert.Contains(t, out, "# HELP docschat_queries_total")
	assert.Contains(t, out, "# TYPE docschat_queries_total counter")
	assert.Contains(t, out, "docschat_queries_total 1")
	assert.Contains(t, out, "docschat_queries_generated_total 1")
	assert.Contains(t, out, "docschat_bus_queries_total 1")
	assert.Contains(t, out, "docschat_uptime_seconds")
}

func TestChatMetrics_Uptime(t *testing.T) {
	m := NewChatMetrics()
	assert.GreaterOrEqual(t, m.Uptime(), time.Duration(0))
}

func TestGetChatMetrics_Singleton(t *testing.T) {
	a := GetChatMetrics()
	b := GetChatMetrics()
	require.Same(t, a, b)
}
