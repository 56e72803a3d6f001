package attendance

import (
	"encoding/json"

	"qrattend/internal/queue"
)

// Event types published after a successful ledger write.
const (
	EventClassMarked     = "attendance.class_marked"
	EventTeacherCheckIn  = "attendance.teacher_check_in"
	EventTeacherCheckOut = "attendance.teacher_check_out"
)

// Event is the queue payload describing a ledger write.
type Event struct {
	RecordID        string `json:"record_id"`
	InstitutionCode string `json:"institution_code"`
	Status          string `json:"status"`
	Date            string `json:"date"`
	LateMinutes     int    `json:"late_minutes,omitempty"`
}

// NewEventMessage builds the queue message for rec.
func NewEventMessage(eventType string, rec Record) (queue.Message, error) {
	body, err := json.Marshal(Event{
		RecordID:        rec.ID,
		InstitutionCode: rec.InstitutionCode,
		Status:          rec.Status,
		Date:            rec.Date.Format(dateLayout),
		LateMinutes:     rec.LateMinutes,
	})
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: eventType, Body: body}, nil
}

// ParseEvent decodes a queue message body.
func ParseEvent(msg queue.Message) (Event, error) {
	var evt Event
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}
