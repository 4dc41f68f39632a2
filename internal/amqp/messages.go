package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"delat/internal/core"
)

// Record kinds carried by RecordChangedMessage.
const (
	KindExpense    = "expense"
	KindIncome     = "income"
	KindSettlement = "settlement"
)

// Actions carried by RecordChangedMessage.
const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

// RecordChangedMessage tells consumers that a group's records for one
// month changed. It carries identifiers only; consumers reload the records.
type RecordChangedMessage struct {
	GroupID   string    `json:"group_id"`
	Kind      string    `json:"kind"`
	RecordID  string    `json:"record_id"`
	Action    string    `json:"action"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordChangedMessage(groupID, kind, recordID, action string, date core.Date) *RecordChangedMessage {
	return &RecordChangedMessage{
		GroupID:   groupID,
		Kind:      kind,
		RecordID:  recordID,
		Action:    action,
		Date:      date.String(),
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Period returns the calendar month the changed record belongs to.
func (m *RecordChangedMessage) Period() (int, time.Month, error) {
	d, err := core.ParseDate(m.Date)
	if err != nil {
		return 0, 0, fmt.Errorf("message date %q: %w", m.Date, err)
	}
	return d.Year(), d.Month(), nil
}

// RecordChangedMessageFromJSON decodes and validates a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GroupID == "" {
		return nil, errors.New("message has no group_id")
	}
	switch msg.Kind {
	case KindExpense, KindIncome, KindSettlement:
	default:
		return nil, fmt.Errorf("unknown record kind %q", msg.Kind)
	}
	if _, _, err := msg.Period(); err != nil {
		return nil, err
	}
	return &msg, nil
}
