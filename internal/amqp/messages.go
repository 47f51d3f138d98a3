package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordSyncMessage announces outbox rows that are ready to be pushed to the
// remote record store. It carries only the table and row keys; the worker
// reads the payloads from the outbox.
type RecordSyncMessage struct {
	Table     string    `json:"table"`
	Keys      []string  `json:"keys"`
	PlanID    string    `json:"plan_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordSyncMessage creates a sync message for the given outbox keys.
func NewRecordSyncMessage(table, planID string, keys []string) *RecordSyncMessage {
	return &RecordSyncMessage{
		Table:     table,
		Keys:      keys,
		PlanID:    planID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordSyncMessageFromJSON decodes a message and rejects one without a table.
func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Table == "" {
		return nil, errors.New("record sync message without table")
	}
	return &msg, nil
}
