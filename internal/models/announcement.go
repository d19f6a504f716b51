package models

import "time"

// Announcement audiences.
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceTeachers = "teachers"
	AudienceParents  = "parents"
)

// ValidAudience reports whether the audience tag is known.
func ValidAudience(a string) bool {
	return a == AudienceAll || a == AudienceStudents || a == AudienceTeachers || a == AudienceParents
}

// Announcement is a notice published to one audience, optionally
// narrowed to a single class.
type Announcement struct {
	ID             string    `db:"id" json:"id"`
	TeacherID      *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Title          string    `db:"title" json:"title"`
	Message        string    `db:"message" json:"message"`
	Date           time.Time `db:"date" json:"date"`
	TargetAudience string    `db:"target_audience" json:"target_audience"`
	ClassID        *string   `db:"class_id" json:"class_id,omitempty"`
	IsUrgent       bool      `db:"is_urgent" json:"is_urgent"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter captures list filters for announcements.
type AnnouncementFilter struct {
	Audiences []string
	ClassID   string
	Urgent    *bool
	Page      int
	PageSize  int
}
