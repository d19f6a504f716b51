package models

import "time"

// Weekday values accepted by timetable entries.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// ValidWeekday reports whether the day is a known lowercase weekday.
func ValidWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// TimetableEntry is one period slot. A class cannot hold two entries in
// the same (day, period) and neither can a teacher across classes.
type TimetableEntry struct {
	ID           string    `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	Day          string    `db:"day" json:"day"`
	PeriodNumber int       `db:"period_number" json:"period_number"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableDetail is a timetable row enriched with display names.
type TimetableDetail struct {
	TimetableEntry
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// TimetableFilter captures list filters for timetable queries.
type TimetableFilter struct {
	ClassID   string
	TeacherID string
	Day       string
}
