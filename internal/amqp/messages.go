package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Message types, carried in the AMQP type property. Deliveries without a
// type are treated as setting changes.
const (
	TypeSettingChanged   = "setting.changed"
	TypeStatsInvalidated = "stats.invalidated"
)

// SettingChangedMessage announces that a setting was changed by one instance
// so the others can drop their cached copy.
type SettingChangedMessage struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSettingChangedMessage creates a change message stamped with the current time
func NewSettingChangedMessage(key, value, origin string) *SettingChangedMessage {
	return &SettingChangedMessage{
		Key:       key,
		Value:     value,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettingChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettingChangedMessageFromJSON decodes a message and rejects one without a key
func SettingChangedMessageFromJSON(data []byte) (*SettingChangedMessage, error) {
	var msg SettingChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Key == "" {
		return nil, errors.New("setting changed message without key")
	}
	return &msg, nil
}

// StatsInvalidatedMessage tells peers that spending data changed, so cached
// period stats must be dropped. Reason names the write for logging.
type StatsInvalidatedMessage struct {
	Reason    string    `json:"reason"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStatsInvalidatedMessage(reason, origin string) *StatsInvalidatedMessage {
	return &StatsInvalidatedMessage{
		Reason:    reason,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

func (m *StatsInvalidatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatsInvalidatedMessageFromJSON decodes a message and rejects one without an origin
func StatsInvalidatedMessageFromJSON(data []byte) (*StatsInvalidatedMessage, error) {
	var msg StatsInvalidatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Origin == "" {
		return nil, errors.New("stats invalidated message without origin")
	}
	return &msg, nil
}
