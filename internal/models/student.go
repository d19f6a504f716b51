package models

import "time"

// Student represents a student profile stored in the students table.
type Student struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	DOB          time.Time `db:"dob" json:"dob"`
	Email        *string   `db:"email" json:"email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Address      *string   `db:"address" json:"address,omitempty"`
	GuardianName *string   `db:"guardian_name" json:"guardian_name,omitempty"`
	ClassID      *string   `db:"class_id" json:"class_id,omitempty"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail is a student row enriched with its class display name.
type StudentDetail struct {
	Student
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	ClassID  string
	Search   string
	Page     int
	PageSize int
}
