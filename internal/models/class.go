package models

import "time"

// Class represents a class/section stored in the classes table.
type Class struct {
	ID           string    `db:"id" json:"id"`
	ClassName    string    `db:"class_name" json:"class_name"`
	Section      string    `db:"section" json:"section"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail is a class row enriched with teacher name and roster size.
type ClassDetail struct {
	Class
	TeacherName  *string `db:"teacher_name" json:"teacher_name"`
	StudentCount int     `db:"student_count" json:"student_count"`
}

// DisplayName renders the conventional "ClassName - Section" label.
func (c Class) DisplayName() string {
	return c.ClassName + " - " + c.Section
}

// ClassFilter captures filtering criteria for listing classes.
type ClassFilter struct {
	AcademicYear string
	TeacherID    string
	Page         int
	PageSize     int
}
