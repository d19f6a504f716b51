package models

import (
	"time"

	"github.com/lib/pq"
)

// Homework represents an assignment issued to a class.
type Homework struct {
	ID           string         `db:"id" json:"id"`
	ClassID      string         `db:"class_id" json:"class_id"`
	TeacherID    string         `db:"teacher_id" json:"teacher_id"`
	SubjectID    string         `db:"subject_id" json:"subject_id"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	AssignedDate time.Time      `db:"assigned_date" json:"assigned_date"`
	DueDate      time.Time      `db:"due_date" json:"due_date"`
	Attachments  pq.StringArray `db:"attachments" json:"attachments"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HomeworkDetail is a homework row enriched with display names.
type HomeworkDetail struct {
	Homework
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// HomeworkFilter captures list filters for homework queries.
type HomeworkFilter struct {
	ClassIDs  []string
	TeacherID string
	SubjectID string
	Page      int
	PageSize  int
}

// HomeworkSubmission is a student's response to a homework item.
type HomeworkSubmission struct {
	ID            string    `db:"id" json:"id"`
	HomeworkID    string    `db:"homework_id" json:"homework_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	FileLink      *string   `db:"file_link" json:"file_link,omitempty"`
	TextContent   *string   `db:"text_content" json:"text_content,omitempty"`
	SubmittedDate time.Time `db:"submitted_date" json:"submitted_date"`
	Grade         *string   `db:"grade" json:"grade,omitempty"`
	Feedback      *string   `db:"feedback" json:"feedback,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
