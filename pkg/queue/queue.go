// Package queue is a small Redis-list job queue with delayed retries and a
// dead letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownType = errors.New("queue: no job registered for type")

// Job handles every message of one type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Config controls workers and retry behavior.
type Config struct {
	Workers      int
	RetryLimit   int
	RetryDelay   time.Duration
	PollInterval time.Duration
	KeyPrefix    string
}

func defaultConfig() Config {
	return Config{
		Workers:      1,
		RetryLimit:   3,
		RetryDelay:   10 * time.Second,
		PollInterval: time.Second,
		KeyPrefix:    "signalscope:queue",
	}
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
