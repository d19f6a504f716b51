package models

import "time"

// Teacher represents a teacher profile stored in the teachers table.
type Teacher struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	Phone           *string   `db:"phone" json:"phone,omitempty"`
	SubjectID       *string   `db:"subject_id" json:"subject_id,omitempty"`
	Qualification   *string   `db:"qualification" json:"qualification,omitempty"`
	ExperienceYears *int      `db:"experience_years" json:"experience_years,omitempty"`
	UserID          *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherDetail is a teacher row enriched with its subject display name.
type TeacherDetail struct {
	Teacher
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
}

// TeacherFilter captures filtering criteria for listing teachers.
type TeacherFilter struct {
	SubjectID string
	Search    string
	Page      int
	PageSize  int
}
