package models

import (
	"math"
	"time"
)

// Grade is the single grade a student holds for a course.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Score        float64   `db:"score" json:"score"`
	DerivedGrade float64   `db:"derived_grade" json:"derived_grade"`
	LetterGrade  string    `db:"letter_grade" json:"letter_grade"`
	Comments     string    `db:"comments" json:"comments"`
	SubmittedBy  string    `db:"submitted_by" json:"submitted_by"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
	LastUpdated  time.Time `db:"last_updated" json:"last_updated"`
}

// GradeView is a grade enriched with read-through course, student and
// submitter data. Enrichment failures leave the field nil and are listed in
// EnrichmentErrors.
type GradeView struct {
	Grade
	Course           *CourseSummary `json:"course,omitempty"`
	Student          *Profile       `json:"student,omitempty"`
	Submitter        *Profile       `json:"submitter,omitempty"`
	EnrichmentErrors []string       `json:"enrichment_errors,omitempty"`
}

// GradeFilter scopes grade listings. Empty CourseIDs with RestrictCourses set
// matches nothing.
type GradeFilter struct {
	StudentID       string
	CourseIDs       []string
	RestrictCourses bool
}

type gradeBand struct {
	min     float64
	derived float64
	letter  string
}

var gradeBands = []gradeBand{
	{95, 4.0, "A"},
	{89, 3.5, "A-"},
	{83, 3.0, "B+"},
	{78, 2.5, "B"},
	{72, 2.0, "B-"},
	{66, 1.5, "C+"},
	{60, 1.0, "C"},
}

// ValidScore reports whether score lies within [0, 100].
func ValidScore(score float64) bool {
	return score >= 0 && score <= 100
}

// RoundScore rounds score to the two decimals the grades table stores.
// Derived and letter grades are computed from the rounded value.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// DerivedGrade maps a score to the GPA scale.
func DerivedGrade(score float64) float64 {
	for _, band := range gradeBands {
		if score >= band.min {
			return band.derived
		}
	}
	return 0.0
}

// LetterGrade maps a score to a letter using the same cut-offs as DerivedGrade.
func LetterGrade(score float64) string {
	for _, band := range gradeBands {
		if score >= band.min {
			return band.letter
		}
	}
	return "F"
}
