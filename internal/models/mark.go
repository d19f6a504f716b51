package models

import "time"

// Mark is a student's score for one exam. At most one row may exist
// per (exam_id, student_id) and marks_scored never exceeds the exam's
// max_marks.
type Mark struct {
	ID          string    `db:"id" json:"id"`
	ExamID      string    `db:"exam_id" json:"exam_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	MarksScored float64   `db:"marks_scored" json:"marks_scored"`
	Remarks     *string   `db:"remarks" json:"remarks,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MarkDetail is a mark row enriched with student/exam display fields
// and the derived percentage.
type MarkDetail struct {
	Mark
	StudentName string  `db:"student_name" json:"student_name"`
	ExamName    string  `db:"exam_name" json:"exam_name"`
	MaxMarks    float64 `db:"max_marks" json:"max_marks"`
	Percentage  float64 `db:"-" json:"percentage"`
}

// MarkFilter captures list filters for marks queries.
type MarkFilter struct {
	ExamID     string
	StudentIDs []string
	Page       int
	PageSize   int
}

// StudentPerformance rolls up a student's marks across exams.
type StudentPerformance struct {
	StudentID         string       `json:"student_id"`
	TotalExams        int          `json:"total_exams"`
	TotalScored       float64      `json:"total_scored"`
	TotalMax          float64      `json:"total_max"`
	OverallPercentage float64      `json:"overall_percentage"`
	Marks             []MarkDetail `json:"marks"`
}
