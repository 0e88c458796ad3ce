// Package messaging queues ingestion jobs on Redis Streams.
package messaging

import (
	"encoding/json"
	"time"
)

// Message is the envelope stored in the stream's "data" field.
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMessage(id, msgType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

type Stream string

const StreamIngest Stream = "stream:kb:ingest"

// DLQStream names the dead-letter stream paired with s.
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

type ConsumerGroup string

const ConsumerGroupIngestWorker ConsumerGroup = "cg-ingest-worker"

// TypeIngest marks a document ingestion job.
const TypeIngest = "document_ingest"

// IngestJob asks a worker to index one document.
type IngestJob struct {
	JobID    string `json:"job_id"`
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
}

type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff is Initial*Multiplier^retryCount, capped at Max.
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			return c.Max
		}
	}
	return backoff
}
