package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEvent_JSON(t *testing.T) {
	event := &SessionEvent{
		Type:          SessionCompleted,
		SessionToken:  "s1",
		DocumentID:    "doc-1",
		Status:        "completed",
		TotalDuration: 15,
		UniquePages:   2,
		At:            time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "session.completed",
		"session_token": "s1",
		"document_id": "doc-1",
		"status": "completed",
		"total_duration": 15,
		"unique_pages": 2,
		"is_admin": false,
		"at": "2024-03-01T10:00:00Z"
	}`, string(data))
}

func TestNopSessionQueue(t *testing.T) {
	q := NewNopSessionQueue()
	assert.NoError(t, q.Publish(context.TODO(), &SessionEvent{Type: SessionOpened}))
	q.Close()
}

func TestKafkaSessionQueue_CanceledContext(t *testing.T) {
	// the producer connects lazily, so no broker is needed here
	q, err := NewKafkaSessionQueue("127.0.0.1:1", "docview.sessions")
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = q.Publish(ctx, &SessionEvent{Type: SessionOpened, SessionToken: "s1"})
	assert.ErrorIs(t, err, context.Canceled)
}
