package models

import "time"

// ReconciliationEntry records a write that failed after its cross-service
// authorization succeeded. Entries are kept for manual repair only.
type ReconciliationEntry struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Operation   string    `json:"operation"`
	PrincipalID string    `json:"principal_id"`
	StudentID   string    `json:"student_id,omitempty"`
	CourseID    string    `json:"course_id,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	Error       string    `json:"error"`
	RecordedAt  time.Time `json:"recorded_at"`
}
