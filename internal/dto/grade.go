package dto

// SubmitGradeRequest is the payload for creating or replacing a grade.
// Score is a pointer so a missing score is distinguishable from zero.
type SubmitGradeRequest struct {
	StudentID string   `json:"studentId" validate:"required,max=64"`
	CourseID  string   `json:"courseId" validate:"required,max=64"`
	Score     *float64 `json:"score"`
	Comments  string   `json:"comments" validate:"max=2000"`
}

// UpdateGradeRequest changes the score and comments of an existing grade.
type UpdateGradeRequest struct {
	Score    *float64 `json:"score"`
	Comments *string  `json:"comments" validate:"omitempty,max=2000"`
}
