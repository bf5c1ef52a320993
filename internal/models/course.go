package models

// CourseStatus mirrors the catalog's course states.
type CourseStatus string

const (
	CourseStatusOpen      CourseStatus = "open"
	CourseStatusClosed    CourseStatus = "closed"
	CourseStatusCancelled CourseStatus = "cancelled"
)

// Course is the catalog's view of a course. It is fetched per request and
// never stored by the ledger or the grading gate.
type Course struct {
	ID            string       `json:"id"`
	Code          string       `json:"code,omitempty"`
	Title         string       `json:"title,omitempty"`
	InstructorID  string       `json:"instructor_id"`
	Capacity      int          `json:"capacity"`
	EnrolledCount int          `json:"enrolled_count"`
	Status        CourseStatus `json:"status,omitempty"`
}

// Summary trims the course to display fields.
func (c *Course) Summary() *CourseSummary {
	if c == nil {
		return nil
	}
	return &CourseSummary{ID: c.ID, Code: c.Code, Title: c.Title}
}

// CourseSummary is the course data attached to grade and enrollment listings.
type CourseSummary struct {
	ID    string `json:"id"`
	Code  string `json:"code,omitempty"`
	Title string `json:"title,omitempty"`
}
