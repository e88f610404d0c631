package queue

import (
	"context"
	"time"
)

type SessionEventType string

const (
	SessionOpened    SessionEventType = "session.opened"
	SessionCompleted SessionEventType = "session.completed"
	SessionAbandoned SessionEventType = "session.abandoned"
)

// SessionEvent is published after a session lifecycle change is committed.
type SessionEvent struct {
	Type          SessionEventType `json:"type"`
	SessionToken  string           `json:"session_token"`
	DocumentID    string           `json:"document_id"`
	Status        string           `json:"status"`
	TotalDuration float64          `json:"total_duration"`
	UniquePages   int              `json:"unique_pages"`
	IsAdmin       bool             `json:"is_admin"`
	At            time.Time        `json:"at"`
}

type SessionQueue interface {
	// Publish appends a session event to the queue.
	Publish(ctx context.Context, event *SessionEvent) error
	// Close flushes pending events and releases the producer.
	Close()
}

var _ SessionQueue = NopSessionQueue{}

// NopSessionQueue drops every event.
type NopSessionQueue struct{}

func NewNopSessionQueue() NopSessionQueue {
	return NopSessionQueue{}
}

func (NopSessionQueue) Publish(context.Context, *SessionEvent) error {
	return nil
}

func (NopSessionQueue) Close() {}
