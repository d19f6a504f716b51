package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	"github.com/campusflow/sms-api/internal/repository"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type dashboardStudentRepository interface {
	Count(ctx context.Context) (int, error)
	CountByClass(ctx context.Context, classID string) (int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type dashboardTeacherRepository interface {
	Count(ctx context.Context) (int, error)
	FindByID(ctx context.Context, id string) (*models.TeacherDetail, error)
}

type dashboardParentRepository interface {
	Count(ctx context.Context) (int, error)
}

type dashboardClassRepository interface {
	Count(ctx context.Context) (int, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassDetail, error)
}

type dashboardAttendanceRepository interface {
	StatusCounts(ctx context.Context, filter models.AttendanceFilter) (*models.StatusCounts, error)
}

type dashboardExamRepository interface {
	Upcoming(ctx context.Context, horizon time.Duration, classIDs []string) ([]models.ExamDetail, error)
	Recent(ctx context.Context, classIDs []string, limit int) ([]models.ExamDetail, error)
}

type dashboardMarkRepository interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.MarkDetail, error)
	AveragePercentage(ctx context.Context, studentID string) (float64, bool, error)
}

type dashboardFeeRepository interface {
	Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error)
	PendingBalance(ctx context.Context, studentID string) (float64, error)
}

type dashboardLeaveRepository interface {
	CountPending(ctx context.Context) (int, error)
}

type dashboardTimetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error)
	ListForDay(ctx context.Context, classIDs []string, day string) ([]models.TimetableDetail, error)
}

type dashboardAnnouncementRepository interface {
	Recent(ctx context.Context, audiences []string, limit int) ([]models.Announcement, error)
}

type dashboardHomeworkRepository interface {
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkDetail, int, error)
	CountSubmissions(ctx context.Context, homeworkID string) (int, error)
	SubmittedHomeworkIDs(ctx context.Context, studentID string, homeworkIDs []string) ([]string, error)
}

// DashboardRepos groups the read models the dashboards aggregate over.
type DashboardRepos struct {
	Students      dashboardStudentRepository
	Teachers      dashboardTeacherRepository
	Parents       dashboardParentRepository
	Classes       dashboardClassRepository
	Attendance    dashboardAttendanceRepository
	Exams         dashboardExamRepository
	Marks         dashboardMarkRepository
	Fees          dashboardFeeRepository
	Leaves        dashboardLeaveRepository
	Timetable     dashboardTimetableRepository
	Announcements dashboardAnnouncementRepository
	Homework      dashboardHomeworkRepository
}

// DashboardCachePrefix namespaces every cached dashboard snapshot key.
// Write endpoints flush this prefix so stale snapshots never outlive a
// mutation.
const DashboardCachePrefix = "dashboard:"

// DashboardService builds role-specific snapshot views. Snapshots are
// cached in Redis for a short TTL since they fan out over many tables.
type DashboardService struct {
	repos   DashboardRepos
	cache   dashboardCache
	policy  *policy.Engine
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
}

// NewDashboardService constructs a DashboardService. cache and metrics may
// be nil, in which case every request recomputes the snapshot.
func NewDashboardService(repos DashboardRepos, cache dashboardCache, policyEngine *policy.Engine, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardService{repos: repos, cache: cache, policy: policyEngine, metrics: metrics, logger: logger, ttl: ttl}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func weekday() string {
	return strings.ToLower(time.Now().UTC().Weekday().String())
}

// Admin builds the school-wide snapshot.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, error) {
	const cacheKey = DashboardCachePrefix + "admin"
	var cached models.AdminDashboard
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	dash := &models.AdminDashboard{GeneratedAt: time.Now().UTC()}

	var err error
	if dash.TotalStudents, err = s.repos.Students.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if dash.TotalTeachers, err = s.repos.Teachers.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	if dash.TotalParents, err = s.repos.Parents.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count parents")
	}
	if dash.TotalClasses, err = s.repos.Classes.Count(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
	}

	day := today()
	counts, err := s.repos.Attendance.StatusCounts(ctx, models.AttendanceFilter{StartDate: &day, EndDate: &day})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate today's attendance")
	}
	if counts.Total > 0 {
		dash.TodayAttendance = 100 * float64(counts.Present+counts.Late) / float64(counts.Total)
	}

	if dash.UpcomingExams, err = s.repos.Exams.Upcoming(ctx, 7*24*time.Hour, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming exams")
	}
	allAudiences := []string{models.AudienceAll, models.AudienceStudents, models.AudienceTeachers, models.AudienceParents}
	if dash.RecentAnnouncements, err = s.repos.Announcements.Recent(ctx, allAudiences, 5); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcements")
	}

	summary, err := s.repos.Fees.Summary(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build fee summary")
	}
	dash.FeeCollectionRate = summary.CollectionRate

	if dash.PendingLeaveRequests, err = s.repos.Leaves.CountPending(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending leave requests")
	}

	s.cacheSet(ctx, cacheKey, dash)
	return dash, nil
}

// Teacher builds the daily snapshot for the calling teacher.
func (s *DashboardService) Teacher(ctx context.Context, p policy.Principal) (*models.TeacherDashboard, error) {
	teacherID, err := s.policy.TeacherID(ctx, p)
	if err != nil {
		return nil, err
	}

	cacheKey := DashboardCachePrefix + "teacher:" + teacherID
	var cached models.TeacherDashboard
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	teacher, err := s.repos.Teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	dash := &models.TeacherDashboard{Teacher: *teacher, GeneratedAt: time.Now().UTC()}

	if dash.Classes, err = s.repos.Classes.ListByTeacher(ctx, teacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	if dash.TodaySchedule, err = s.repos.Timetable.List(ctx, models.TimetableFilter{TeacherID: teacherID, Day: weekday()}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's schedule")
	}

	homework, _, err := s.repos.Homework.List(ctx, models.HomeworkFilter{TeacherID: teacherID, PageSize: 10})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}
	for _, hw := range homework {
		submissions, err := s.repos.Homework.CountSubmissions(ctx, hw.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}
		roster, err := s.repos.Students.CountByClass(ctx, hw.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
		}
		dash.Homework = append(dash.Homework, models.HomeworkWithStatus{
			HomeworkDetail:  hw,
			SubmissionCount: submissions,
			StudentCount:    roster,
		})
	}

	classIDs := make([]string, 0, len(dash.Classes))
	for _, c := range dash.Classes {
		classIDs = append(classIDs, c.ID)
	}
	if len(classIDs) > 0 {
		if dash.RecentExams, err = s.repos.Exams.Recent(ctx, classIDs, 5); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent exams")
		}
	}

	s.cacheSet(ctx, cacheKey, dash)
	return dash, nil
}

// Student builds the snapshot for the calling student.
func (s *DashboardService) Student(ctx context.Context, p policy.Principal) (*models.StudentDashboard, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	if scope.Unrestricted || len(scope.StudentIDs) != 1 {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile linked to this account")
	}
	studentID := scope.StudentIDs[0]

	cacheKey := DashboardCachePrefix + "student:" + studentID
	var cached models.StudentDashboard
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	student, err := s.repos.Students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	dash := &models.StudentDashboard{Student: *student, GeneratedAt: time.Now().UTC()}

	dash.AttendancePercentage, err = s.attendancePercentage(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if student.ClassID != nil {
		classIDs := []string{*student.ClassID}
		if dash.TodayTimetable, err = s.repos.Timetable.ListForDay(ctx, classIDs, weekday()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's timetable")
		}
		if dash.UpcomingExams, err = s.repos.Exams.Upcoming(ctx, 30*24*time.Hour, classIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming exams")
		}
		if dash.PendingHomework, err = s.pendingHomework(ctx, studentID, *student.ClassID); err != nil {
			return nil, err
		}
	}

	if dash.RecentMarks, err = s.repos.Marks.ListByStudent(ctx, studentID, 5); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent marks")
	}
	for i := range dash.RecentMarks {
		fillPercentage(&dash.RecentMarks[i])
	}

	if dash.Announcements, err = s.repos.Announcements.Recent(ctx, []string{models.AudienceAll, models.AudienceStudents}, 5); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcements")
	}

	s.cacheSet(ctx, cacheKey, dash)
	return dash, nil
}

// Parent builds per-child summaries for the calling parent.
func (s *DashboardService) Parent(ctx context.Context, p policy.Principal) (*models.ParentDashboard, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	if scope.Unrestricted {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no parent profile linked to this account")
	}

	cacheKey := DashboardCachePrefix + "parent:" + p.UserID
	var cached models.ParentDashboard
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	dash := &models.ParentDashboard{Children: []models.ChildSummary{}, GeneratedAt: time.Now().UTC()}

	for _, childID := range scope.StudentIDs {
		student, err := s.repos.Students.FindByID(ctx, childID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load child")
		}

		summary := models.ChildSummary{Student: *student}
		if summary.AttendancePercentage, err = s.attendancePercentage(ctx, childID); err != nil {
			return nil, err
		}
		avg, ok, err := s.repos.Marks.AveragePercentage(ctx, childID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to average marks")
		}
		if ok {
			summary.AverageMarks = avg
		}
		if summary.PendingFees, err = s.repos.Fees.PendingBalance(ctx, childID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum pending fees")
		}
		dash.Children = append(dash.Children, summary)
	}

	if dash.Announcements, err = s.repos.Announcements.Recent(ctx, []string{models.AudienceAll, models.AudienceParents}, 5); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcements")
	}

	s.cacheSet(ctx, cacheKey, dash)
	return dash, nil
}

func (s *DashboardService) attendancePercentage(ctx context.Context, studentID string) (float64, error) {
	counts, err := s.repos.Attendance.StatusCounts(ctx, models.AttendanceFilter{StudentIDs: []string{studentID}})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	if counts.Total == 0 {
		return 0, nil
	}
	return 100 * float64(counts.Present+counts.Late) / float64(counts.Total), nil
}

func (s *DashboardService) pendingHomework(ctx context.Context, studentID, classID string) ([]models.HomeworkDetail, error) {
	homework, _, err := s.repos.Homework.List(ctx, models.HomeworkFilter{ClassIDs: []string{classID}, PageSize: 20})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}
	if len(homework) == 0 {
		return []models.HomeworkDetail{}, nil
	}

	ids := make([]string, 0, len(homework))
	for _, hw := range homework {
		ids = append(ids, hw.ID)
	}
	submitted, err := s.repos.Homework.SubmittedHomeworkIDs(ctx, studentID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	done := make(map[string]bool, len(submitted))
	for _, id := range submitted {
		done[id] = true
	}

	pending := []models.HomeworkDetail{}
	for _, hw := range homework {
		if !done[hw.ID] {
			pending = append(pending, hw)
		}
	}
	return pending, nil
}

func (s *DashboardService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		s.metrics.RecordCacheLookup(true)
		return true
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheLookup(false)
	return false
}

func (s *DashboardService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
