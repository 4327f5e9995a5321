package worker

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

const (
	JobIntakeCycle JobType = "intake.cycle"
	JobRewardSend  JobType = "reward.send"
)

// Result is what a job produced, delivered to callers that wait for it.
type Result struct {
	Value any
	Err   error
}

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`

	result chan Result // nil unless a caller waits
	onDone func(error) // runs after the job, success or not
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// WithResult makes the message deliver its outcome on the returned channel.
func (m *Message) WithResult() <-chan Result {
	m.result = make(chan Result, 1)
	return m.result
}

// OnDone registers a completion hook.
func (m *Message) OnDone(fn func(error)) *Message {
	m.onDone = fn
	return m
}

func (m *Message) finish(value any, err error) {
	if m.result != nil {
		m.result <- Result{Value: value, Err: err}
	}
	if m.onDone != nil {
		m.onDone(err)
	}
}

func payloadInt64(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
