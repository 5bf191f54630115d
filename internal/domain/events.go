package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for published events.
const (
	EventTypePaperIngested   = "paper.ingested"
	EventTypeSearchRequested = "search.requested"
	EventTypeBatchCompleted  = "search.batch_completed"
)

// Event is the envelope written to the event stream.
type Event struct {
	EventID      string            `json:"event_id"`
	EventVersion int               `json:"event_version"`
	EventType    string            `json:"event_type"`
	AggregateID  string            `json:"aggregate_id"`
	Payload      json.RawMessage   `json:"payload"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType, aggregateID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    eventType,
		AggregateID:  aggregateID,
		Payload:      payloadBytes,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// WithMetadata sets the metadata on the event.
func (e *Event) WithMetadata(metadata map[string]string) *Event {
	e.Metadata = metadata
	return e
}

// PaperIngestedPayload is the payload for paper.ingested events.
type PaperIngestedPayload struct {
	PaperID     string     `json:"paper_id"`
	CanonicalID string     `json:"canonical_id"`
	DOI         string     `json:"doi,omitempty"`
	Title       string     `json:"title"`
	Source      SourceType `json:"source"`
	ChunkCount  int        `json:"chunk_count"`
	FullText    bool       `json:"full_text"`
}

// SearchRequestedPayload is the payload for search.requested events consumed by the worker.
type SearchRequestedPayload struct {
	RequestID string        `json:"request_id"`
	Queries   []string      `json:"queries"`
	Options   SearchOptions `json:"options"`
}

// BatchCompletedPayload is the payload for search.batch_completed events.
type BatchCompletedPayload struct {
	RequestID      string        `json:"request_id"`
	Queries        int           `json:"queries"`
	PapersFound    int           `json:"papers_found"`
	PapersIngested int           `json:"papers_ingested"`
	Failed         int           `json:"failed"`
	RateLimited    bool          `json:"rate_limited"`
	Duration       time.Duration `json:"duration_ns"`
}
