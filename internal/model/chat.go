// Package model defines the data models for the documentation chatbot.
package model

import "time"

// AnswerPath identifies which pipeline branch produced an answer.
type AnswerPath string

const (
	// PathCanned means a canned response matched the question.
	PathCanned AnswerPath = "canned"
	// PathCached means the answer came from the answer cache.
	PathCached AnswerPath = "cached"
	// PathGenerated means the answer was generated from retrieved context.
	PathGenerated AnswerPath = "generated"
	// PathNoContext means retrieval found nothing relevant and a fallback
	// answer was produced.
	PathNoContext AnswerPath = "no_context"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Domain  string `json:"domain,omitempty"`
}

// ChatEvent is a single server-sent event on the chat stream.
// Type is one of metadata, content, done, error.
type ChatEvent struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Error   string   `json:"error,omitempty"`
}

const (
	// EventMetadata carries the sources known before generation starts.
	EventMetadata = "metadata"
	// EventContent carries one streamed answer fragment.
	EventContent = "content"
	// EventDone carries the final reconciled source list.
	EventDone = "done"
	// EventError carries a terminal error message.
	EventError = "error"
)

// QueryEvent is a query published on the bus query channel.
type QueryEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ResponseEvent is the single response published per QueryEvent on the bus
// response channel. Success is false when the pipeline failed; Response then
// carries a user-safe explanation.
type ResponseEvent struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	ChannelID string   `json:"channelId"`
	Response  string   `json:"response"`
	Sources   []string `json:"sources"`
	Success   bool     `json:"success"`
	Timestamp int64    `json:"timestamp"`
}

// CachedAnswer is the value stored in the answer cache.
type CachedAnswer struct {
	Answer   string    `json:"answer"`
	Sources  []string  `json:"sources"`
	CachedAt time.Time `json:"cached_at"`
}

// IngestRequest describes one document submitted for ingestion.
type IngestRequest struct {
	Domain  string `json:"domain,omitempty"`
	Source  string `json:"source" binding:"required"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content" binding:"required"`
}

// IngestResponse reports how many chunks were indexed for a document.
type IngestResponse struct {
	Domain       string `json:"domain"`
	Source       string `json:"source"`
	ChunksStored int    `json:"chunks_stored"`
}

// DomainInfo describes one registered documentation domain.
type DomainInfo struct {
	Name       string `json:"name"`
	ChunkCount int64  `json:"chunk_count"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Uptime  string         `json:"uptime"`
	Metrics map[string]any `json:"metrics"`
	Domains []DomainInfo   `json:"domains"`
}
