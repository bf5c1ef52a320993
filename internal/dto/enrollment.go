package dto

// EnrollRequest is the payload for enrolling the caller in a course.
type EnrollRequest struct {
	CourseID string `json:"courseId" validate:"required,max=64"`
}

// DropRequest identifies the record to drop by record id or course id.
type DropRequest struct {
	EnrollmentID string `json:"enrollmentId" validate:"required_without=CourseID,omitempty,max=64"`
	CourseID     string `json:"courseId" validate:"required_without=EnrollmentID,omitempty,max=64"`
}

// Ref returns the reference the ledger should resolve.
func (r DropRequest) Ref() string {
	if r.EnrollmentID != "" {
		return r.EnrollmentID
	}
	return r.CourseID
}

// ReviewStatusRequest moves a pending enrollment under the approval workflow.
type ReviewStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// ExportFile is a rendered roster document.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
