package models

import "time"

// LeaveStatus tracks the leave request lifecycle. pending is the only
// non-terminal state.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// ValidLeaveStatus reports whether the status is a known value.
func ValidLeaveStatus(s LeaveStatus) bool {
	return s == LeavePending || s == LeaveApproved || s == LeaveRejected
}

// LeaveRequest is an absence request raised for a student.
type LeaveRequest struct {
	ID           string      `db:"id" json:"id"`
	StudentID    string      `db:"student_id" json:"student_id"`
	StartDate    time.Time   `db:"start_date" json:"start_date"`
	EndDate      time.Time   `db:"end_date" json:"end_date"`
	Reason       string      `db:"reason" json:"reason"`
	Status       LeaveStatus `db:"status" json:"status"`
	AdminRemarks *string     `db:"admin_remarks" json:"admin_remarks,omitempty"`
	AppliedDate  time.Time   `db:"applied_date" json:"applied_date"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// LeaveRequestDetail is a leave row enriched with the student name.
type LeaveRequestDetail struct {
	LeaveRequest
	StudentName string `db:"student_name" json:"student_name"`
}

// LeaveFilter captures list filters for leave requests.
type LeaveFilter struct {
	StudentIDs []string
	Status     LeaveStatus
	Page       int
	PageSize   int
}
