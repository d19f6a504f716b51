package models

import "time"

// Parent represents a guardian profile stored in the parents table.
type Parent struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone" json:"phone"`
	Occupation *string   `db:"occupation" json:"occupation,omitempty"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ParentStudentLink joins a parent to a student in parent_students.
type ParentStudentLink struct {
	ID           string    `db:"id" json:"id"`
	ParentID     string    `db:"parent_id" json:"parent_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Relationship string    `db:"relationship" json:"relationship"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ParentDetail is a parent row plus its linked students.
type ParentDetail struct {
	Parent
	Students []StudentDetail `json:"students,omitempty"`
}
