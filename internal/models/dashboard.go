package models

import "time"

// AdminDashboard is the school-wide roll-up for admin users.
type AdminDashboard struct {
	TotalStudents        int            `json:"total_students"`
	TotalTeachers        int            `json:"total_teachers"`
	TotalParents         int            `json:"total_parents"`
	TotalClasses         int            `json:"total_classes"`
	TodayAttendance      float64        `json:"today_attendance_percentage"`
	UpcomingExams        []ExamDetail   `json:"upcoming_exams"`
	RecentAnnouncements  []Announcement `json:"recent_announcements"`
	FeeCollectionRate    float64        `json:"fee_collection_rate"`
	PendingLeaveRequests int            `json:"pending_leave_requests"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

// TeacherDashboard summarises the day for one teacher.
type TeacherDashboard struct {
	Teacher       TeacherDetail        `json:"teacher"`
	Classes       []ClassDetail        `json:"classes"`
	TodaySchedule []TimetableDetail    `json:"today_schedule"`
	Homework      []HomeworkWithStatus `json:"homework"`
	RecentExams   []ExamDetail         `json:"recent_exams"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// HomeworkWithStatus pairs a homework item with submission progress.
type HomeworkWithStatus struct {
	HomeworkDetail
	SubmissionCount int `json:"submission_count"`
	StudentCount    int `json:"student_count"`
}

// StudentDashboard summarises standing for one student.
type StudentDashboard struct {
	Student              StudentDetail     `json:"student"`
	AttendancePercentage float64           `json:"attendance_percentage"`
	TodayTimetable       []TimetableDetail `json:"today_timetable"`
	UpcomingExams        []ExamDetail      `json:"upcoming_exams"`
	PendingHomework      []HomeworkDetail  `json:"pending_homework"`
	RecentMarks          []MarkDetail      `json:"recent_marks"`
	Announcements        []Announcement    `json:"announcements"`
	GeneratedAt          time.Time         `json:"generated_at"`
}

// ChildSummary is one child's roll-up inside the parent dashboard.
type ChildSummary struct {
	Student              StudentDetail `json:"student"`
	AttendancePercentage float64       `json:"attendance_percentage"`
	AverageMarks         float64       `json:"average_marks_percentage"`
	PendingFees          float64       `json:"pending_fees"`
}

// ParentDashboard aggregates per-child summaries for a parent.
type ParentDashboard struct {
	Children      []ChildSummary `json:"children"`
	Announcements []Announcement `json:"announcements"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
