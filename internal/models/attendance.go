package models

import "time"

// AttendanceStatus enumerates the valid attendance markings.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// ValidAttendanceStatus reports whether the status is a known value.
func ValidAttendanceStatus(s AttendanceStatus) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// Attendance is a single daily attendance record. At most one row may
// exist per (student_id, date).
type Attendance struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Remarks   *string          `db:"remarks" json:"remarks,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail is an attendance row enriched with the student name.
type AttendanceDetail struct {
	Attendance
	StudentName string `db:"student_name" json:"student_name"`
}

// AttendanceFilter captures list filters for attendance queries.
type AttendanceFilter struct {
	StudentIDs []string
	ClassID    string
	Status     AttendanceStatus
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PageSize   int
}

// AttendanceStatistics aggregates counts over a set of records.
type AttendanceStatistics struct {
	TotalDays            int     `json:"total_days"`
	Present              int     `json:"present"`
	Absent               int     `json:"absent"`
	Late                 int     `json:"late"`
	Excused              int     `json:"excused"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// StatusCounts summarises per-status totals fetched in one query.
type StatusCounts struct {
	Total   int `db:"total"`
	Present int `db:"present"`
	Absent  int `db:"absent"`
	Late    int `db:"late"`
	Excused int `db:"excused"`
}

// Defaulter is a student whose attendance percentage sits below the
// configured threshold.
type Defaulter struct {
	StudentID            string  `db:"student_id" json:"student_id"`
	StudentName          string  `db:"student_name" json:"student_name"`
	ClassID              *string `db:"class_id" json:"class_id,omitempty"`
	TotalDays            int     `db:"total_days" json:"total_days"`
	PresentDays          int     `db:"present_days" json:"present_days"`
	AttendancePercentage float64 `db:"attendance_percentage" json:"attendance_percentage"`
}
