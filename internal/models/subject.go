package models

import "time"

// Subject represents a subject taught in a class.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	ClassID     string    `db:"class_id" json:"class_id"`
	Code        *string   `db:"code" json:"code,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
