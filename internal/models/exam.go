package models

import "time"

// Exam represents a scheduled examination for a class and subject.
type Exam struct {
	ID              string    `db:"id" json:"id"`
	ClassID         string    `db:"class_id" json:"class_id"`
	SubjectID       string    `db:"subject_id" json:"subject_id"`
	ExamName        string    `db:"exam_name" json:"exam_name"`
	Date            time.Time `db:"date" json:"date"`
	MaxMarks        float64   `db:"max_marks" json:"max_marks"`
	DurationMinutes *int      `db:"duration_minutes" json:"duration_minutes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ExamDetail is an exam row enriched with class and subject names.
type ExamDetail struct {
	Exam
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
}

// ExamFilter captures list filters for exam queries.
type ExamFilter struct {
	ClassID   string
	SubjectID string
	Page      int
	PageSize  int
}
