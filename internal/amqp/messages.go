package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"dailybudget/internal/core"
)

// MonthArchivedMessage announces a finished period. It carries the whole
// record because history entries never change after they are written.
type MonthArchivedMessage struct {
	History   core.MonthHistory `json:"history"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewMonthArchivedMessage(h core.MonthHistory) *MonthArchivedMessage {
	return &MonthArchivedMessage{
		History:   h,
		Timestamp: time.Now().UTC(),
	}
}

func (m *MonthArchivedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthArchivedMessageFromJSON decodes a message and rejects one without a period.
func MonthArchivedMessageFromJSON(data []byte) (*MonthArchivedMessage, error) {
	var msg MonthArchivedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.History.ID.IsZero() {
		return nil, errors.New("message without period id")
	}
	return &msg, nil
}
