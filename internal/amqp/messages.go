package amqp

import (
	"encoding/json"
	"time"
)

// ReportRefreshedMessage announces a published snapshot. It carries counts
// only, never report rows.
type ReportRefreshedMessage struct {
	SnapshotID  uint64         `json:"snapshot_id"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
	Rows        map[string]int `json:"rows"`
	Warnings    int            `json:"warnings"`
	Error       string         `json:"error,omitempty"`
}

// NewReportRefreshedMessage creates a message for a completed cycle
func NewReportRefreshedMessage(snapshotID uint64, completedAt time.Time, duration time.Duration, rows map[string]int, warnings int, errText string) *ReportRefreshedMessage {
	if rows == nil {
		rows = map[string]int{}
	}
	return &ReportRefreshedMessage{
		SnapshotID:  snapshotID,
		CompletedAt: completedAt.UTC(),
		DurationMs:  duration.Milliseconds(),
		Rows:        rows,
		Warnings:    warnings,
		Error:       errText,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportRefreshedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRefreshedMessageFromJSON decodes a message body
func ReportRefreshedMessageFromJSON(data []byte) (*ReportRefreshedMessage, error) {
	var msg ReportRefreshedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
