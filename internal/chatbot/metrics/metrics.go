// Package metrics 提供聊天机器人的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChatMetrics 聊天机器人业务指标。
type ChatMetrics struct {
	// 查询指标
	queriesTotal  uint64 // 总查询次数
	queriesCanned uint64 // 固定答案命中次数
	queriesCached uint64 // 缓存命中次数
	queriesNoCtx  uint64 // 无匹配文档的查询次数
	queriesGen    uint64 // 完整生成的查询次数
	queriesErrors uint64 // 查询错误次数

	// 检索指标
	retrievalTotal    uint64  // 总检索次数
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64  // 检索错误次数

	// LLM 调用指标
	llmCallsTotal    uint64  // LLM 总调用次数
	llmCallsDuration float64 // LLM 调用总耗时（秒）
	llmCallsErrors   uint64  // LLM 调用错误次数

	// 消息总线指标
	busQueries   uint64 // 收到的查询事件数
	busResponses uint64 // 发布的响应事件数
	busFailures  uint64 // success=false 的响应数

	// 入库指标
	documentsIngested uint64 // 已入库文档数
	chunksIngested    uint64 // 已入库分块数
	ingestErrors      uint64 // 入库错误次数

	startTime  time.Time
	durationMu sync.Mutex
}

// globalChatMetrics 全局指标实例。
var (
	globalChatMetrics *ChatMetrics
	chatMetricsOnce   sync.Once
)

// GetChatMetrics 获取全局指标实例。
func GetChatMetrics() *ChatMetrics {
	chatMetricsOnce.Do(func() {
		globalChatMetrics = NewChatMetrics()
	})
	return globalChatMetrics
}

// NewChatMetrics 创建独立的指标实例（测试用）。
func NewChatMetrics() *ChatMetrics {
	return &ChatMetrics{
		startTime: time.Now(),
	}
}

// RecordQuery 记录一次查询及其走过的路径。
func (m *ChatMetrics) RecordQuery(path string, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	switch path {
	case "canned":
		atomic.AddUint64(&m.queriesCanned, 1)
	case "cached":
		atomic.AddUint64(&m.queriesCached, 1)
	case "no_context":
		atomic.AddUint64(&m.queriesNoCtx, 1)
	case "generated":
		atomic.AddUint64(&m.queriesGen, 1)
	}
}

// RecordRetrieval 记录检索操作。
func (m *ChatMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall 记录 LLM 调用。
func (m *ChatMetrics) RecordLLMCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordBusQuery 记录收到的总线查询事件。
func (m *ChatMetrics) RecordBusQuery() {
	atomic.AddUint64(&m.busQueries, 1)
}

// RecordBusResponse 记录发布的总线响应事件。
func (m *ChatMetrics) RecordBusResponse(success bool) {
	atomic.AddUint64(&m.busResponses, 1)
	if !success {
		atomic.AddUint64(&m.busFailures, 1)
	}
}

// RecordIngest 记录入库操作。
func (m *ChatMetrics) RecordIngest(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
	}
	if documents > 0 {
		atomic.AddUint64(&m.documentsIngested, uint64(documents))
	}
	if chunks > 0 {
		atomic.AddUint64(&m.chunksIngested, uint64(chunks))
	}
}

// Uptime 返回服务运行时长。
func (m *ChatMetrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Export 导出 Prometheus 文本格式指标。
func (m *ChatMetrics) Export(namespace string) string {
	var sb strings.Builder

	counter := func(name, help string, value uint64) {
		full := namespace + "_" + name
		sb.WriteString(fmt.Sprintf("# HELP %s %s\n", full, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", full))
		sb.WriteString(fmt.Sprintf("%s %d\n\n", full, value))
	}

	counter("queries_total", "Total number of chat queries.", atomic.LoadUint64(&m.queriesTotal))
	counter("queries_canned_total", "Queries answered from the canned table.", atomic.LoadUint64(&m.queriesCanned))
	counter("queries_cached_total", "Queries answered from the answer cache.", atomic.LoadUint64(&m.queriesCached))
	counter("queries_no_context_total", "Queries with no relevant documentation.", atomic.LoadUint64(&m.queriesNoCtx))
	counter("queries_generated_total", "Queries answered by full generation.", atomic.LoadUint64(&m.queriesGen))
	counter("queries_errors_total", "Number of query errors.", atomic.LoadUint64(&m.queriesErrors))
	counter("retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	counter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))
	counter("llm_calls_total", "Total number of LLM calls.", atomic.LoadUint64(&m.llmCallsTotal))
	counter("llm_calls_errors_total", "Number of LLM call errors.", atomic.LoadUint64(&m.llmCallsErrors))
	counter("bus_queries_total", "Query events received from the bus.", atomic.LoadUint64(&m.busQueries))
	counter("bus_responses_total", "Response events published to the bus.", atomic.LoadUint64(&m.busResponses))
	counter("bus_failures_total", "Response events with success=false.", atomic.LoadUint64(&m.busFailures))
	counter("documents_ingested_total", "Total documents ingested.", atomic.LoadUint64(&m.documentsIngested))
	counter("chunks_ingested_total", "Total chunks ingested.", atomic.LoadUint64(&m.chunksIngested))
	counter("ingest_errors_total", "Number of ingestion errors.", atomic.LoadUint64(&m.ingestErrors))

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_retrieval_duration_seconds_total Total retrieval duration.\n", namespace))
	sb.WriteString(fmt.Sprintf("# TYPE %s_retrieval_duration_seconds_total counter\n", namespace))
	sb.WriteString(fmt.Sprintf("%s_retrieval_duration_seconds_total %.6f\n\n", namespace, retrievalDuration))

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_duration_seconds_total Total LLM call duration.\n", namespace))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_duration_seconds_total counter\n", namespace))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_duration_seconds_total %.6f\n\n", namespace, llmDuration))

	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", namespace))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", namespace))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n", namespace, time.Since(m.startTime).Seconds()))

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *ChatMetrics) Stats() map[string]any {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	return map[string]any{
		"queries": map[string]any{
			"total":      atomic.LoadUint64(&m.queriesTotal),
			"canned":     atomic.LoadUint64(&m.queriesCanned),
			"cached":     atomic.LoadUint64(&m.queriesCached),
			"no_context": atomic.LoadUint64(&m.queriesNoCtx),
			"generated":  atomic.LoadUint64(&m.queriesGen),
			"errors":     atomic.LoadUint64(&m.queriesErrors),
		},
		"retrieval": map[string]any{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]any{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
		},
		"bus": map[string]any{
			"queries":   atomic.LoadUint64(&m.busQueries),
			"responses": atomic.LoadUint64(&m.busResponses),
			"failures":  atomic.LoadUint64(&m.busFailures),
		},
		"ingest": map[string]any{
			"documents": atomic.LoadUint64(&m.documentsIngested),
			"chunks":    atomic.LoadUint64(&m.chunksIngested),
			"errors":    atomic.LoadUint64(&m.ingestErrors),
		},
	}
}
