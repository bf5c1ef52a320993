package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment record.
type EnrollmentStatus string

// Possible enrollment statuses. Pending, approved and rejected only occur
// under the approval workflow.
const (
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped  EnrollmentStatus = "dropped"
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Workflow selects which status machine the ledger runs.
type Workflow string

const (
	WorkflowImmediate Workflow = "immediate"
	WorkflowApproval  Workflow = "approval"
)

// ParseWorkflow maps a configuration value to a Workflow, defaulting to immediate.
func ParseWorkflow(raw string) Workflow {
	if Workflow(strings.ToLower(strings.TrimSpace(raw))) == WorkflowApproval {
		return WorkflowApproval
	}
	return WorkflowImmediate
}

// InitialStatus is the status assigned on enroll and re-enroll.
func (w Workflow) InitialStatus() EnrollmentStatus {
	if w == WorkflowApproval {
		return EnrollmentStatusPending
	}
	return EnrollmentStatusEnrolled
}

// EnrolledStatuses are the statuses that count as enrolled for rosters,
// enrollment checks and grading.
func (w Workflow) EnrolledStatuses() []EnrollmentStatus {
	if w == WorkflowApproval {
		return []EnrollmentStatus{EnrollmentStatusApproved}
	}
	return []EnrollmentStatus{EnrollmentStatusEnrolled}
}

// ReusableStatuses are the statuses a record may be re-enrolled from in place.
func (w Workflow) ReusableStatuses() []EnrollmentStatus {
	if w == WorkflowApproval {
		return []EnrollmentStatus{EnrollmentStatusDropped, EnrollmentStatusRejected}
	}
	return []EnrollmentStatus{EnrollmentStatusDropped}
}

// IsEnrolled reports whether status counts as enrolled.
func (w Workflow) IsEnrolled(status EnrollmentStatus) bool {
	return containsStatus(w.EnrolledStatuses(), status)
}

// IsReusable reports whether a record in status can be re-enrolled.
func (w Workflow) IsReusable(status EnrollmentStatus) bool {
	return containsStatus(w.ReusableStatuses(), status)
}

// CanTransition reports whether a review may move a record from one status to another.
func (w Workflow) CanTransition(from, to EnrollmentStatus) bool {
	if w != WorkflowApproval {
		return false
	}
	if from != EnrollmentStatusPending {
		return false
	}
	return to == EnrollmentStatusApproved || to == EnrollmentStatusRejected
}

func containsStatus(list []EnrollmentStatus, status EnrollmentStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

// StatusStrings converts statuses into driver friendly values.
func StatusStrings(statuses []EnrollmentStatus) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

// Enrollment is a ledger record. One row exists per (student, course) pair and
// the id survives drop and re-enroll cycles.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentView is a student's own record with the course's display data.
// A failed catalog lookup leaves Course nil and is listed in EnrichmentErrors.
type EnrollmentView struct {
	Enrollment
	Course           *CourseSummary `json:"course,omitempty"`
	EnrichmentErrors []string       `json:"enrichment_errors,omitempty"`
}

// RosterEntry is an enrolled record with the student's directory profile.
type RosterEntry struct {
	Enrollment
	Student  Profile `json:"student"`
	Degraded bool    `json:"degraded,omitempty"`
}

// EnrollmentCheck answers whether a student is currently enrolled in a course.
type EnrollmentCheck struct {
	Enrolled     bool   `json:"enrolled"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
}

// OccupyingStatuses are the statuses that hold a seat for capacity checks.
func (w Workflow) OccupyingStatuses() []EnrollmentStatus {
	if w == WorkflowApproval {
		return []EnrollmentStatus{EnrollmentStatusPending, EnrollmentStatusApproved}
	}
	return []EnrollmentStatus{EnrollmentStatusEnrolled}
}

// Roster is the enrolled subset of a course's records. Degraded counts the
// entries served with a placeholder profile.
type Roster struct {
	CourseID string        `json:"course_id"`
	Entries  []RosterEntry `json:"entries"`
	Degraded int           `json:"degraded"`
}
