package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventExtractionCompleted = "cnh.extraction.completed"
	EventExtractionFailed    = "cnh.extraction.failed"
)

// Exchange names
const (
	ExchangeCNHEvents = "cnh.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Extraction events carry job metadata only. Extracted values are personal
// data and never leave the service through the broker.

// ExtractionCompletedEvent is published when a job finishes
type ExtractionCompletedEvent struct {
	JobID                string   `json:"job_id"`
	DocumentFingerprint  string   `json:"document_fingerprint"`
	Producer             string   `json:"producer"`
	FieldsFound          []string `json:"fields_found"`
	FieldsMissing        []string `json:"fields_missing,omitempty"`
	Warnings             int      `json:"warnings"`
	ProcessingDurationMs int64    `json:"processing_duration_ms"`
}

// ExtractionFailedEvent is published when no producer could read the document
type ExtractionFailedEvent struct {
	JobID               string `json:"job_id"`
	DocumentFingerprint string `json:"document_fingerprint"`
	ErrorCode           string `json:"error_code"`
	Message             string `json:"message"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
