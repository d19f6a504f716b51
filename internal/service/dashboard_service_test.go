package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	"github.com/campusflow/sms-api/internal/repository"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type memoryCache struct {
	entries map[string][]byte
	gets    int
	hits    int
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

type dashStudentRepo struct {
	count   int
	byClass map[string]int
	byID    map[string]*models.StudentDetail
}

func (r *dashStudentRepo) Count(ctx context.Context) (int, error) { return r.count, nil }

func (r *dashStudentRepo) CountByClass(ctx context.Context, classID string) (int, error) {
	return r.byClass[classID], nil
}

func (r *dashStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

type dashTeacherRepo struct {
	count int
	byID  map[string]*models.TeacherDetail
}

func (r *dashTeacherRepo) Count(ctx context.Context) (int, error) { return r.count, nil }

func (r *dashTeacherRepo) FindByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

type dashParentRepo struct {
	count int
}

func (r *dashParentRepo) Count(ctx context.Context) (int, error) { return r.count, nil }

type dashClassRepo struct {
	count     int
	byTeacher []models.ClassDetail
}

func (r *dashClassRepo) Count(ctx context.Context) (int, error) { return r.count, nil }

func (r *dashClassRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassDetail, error) {
	return r.byTeacher, nil
}

type dashAttendanceRepo struct {
	counts *models.StatusCounts
}

func (r *dashAttendanceRepo) StatusCounts(ctx context.Context, filter models.AttendanceFilter) (*models.StatusCounts, error) {
	if r.counts == nil {
		return &models.StatusCounts{}, nil
	}
	return r.counts, nil
}

type dashExamRepo struct {
	upcoming []models.ExamDetail
	recent   []models.ExamDetail
}

func (r *dashExamRepo) Upcoming(ctx context.Context, horizon time.Duration, classIDs []string) ([]models.ExamDetail, error) {
	return r.upcoming, nil
}

func (r *dashExamRepo) Recent(ctx context.Context, classIDs []string, limit int) ([]models.ExamDetail, error) {
	return r.recent, nil
}

type dashMarkRepo struct {
	recent []models.MarkDetail
	avg    float64
	hasAvg bool
}

func (r *dashMarkRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.MarkDetail, error) {
	return r.recent, nil
}

func (r *dashMarkRepo) AveragePercentage(ctx context.Context, studentID string) (float64, bool, error) {
	return r.avg, r.hasAvg, nil
}

type dashFeeRepo struct {
	summary *models.FeeSummary
	pending map[string]float64
}

func (r *dashFeeRepo) Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error) {
	if r.summary == nil {
		return &models.FeeSummary{}, nil
	}
	return r.summary, nil
}

func (r *dashFeeRepo) PendingBalance(ctx context.Context, studentID string) (float64, error) {
	return r.pending[studentID], nil
}

type dashLeaveRepo struct {
	pending int
}

func (r *dashLeaveRepo) CountPending(ctx context.Context) (int, error) { return r.pending, nil }

type dashTimetableRepo struct {
	entries []models.TimetableDetail
}

func (r *dashTimetableRepo) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error) {
	return r.entries, nil
}

func (r *dashTimetableRepo) ListForDay(ctx context.Context, classIDs []string, day string) ([]models.TimetableDetail, error) {
	return r.entries, nil
}

type dashAnnouncementRepo struct {
	recent []models.Announcement
}

func (r *dashAnnouncementRepo) Recent(ctx context.Context, audiences []string, limit int) ([]models.Announcement, error) {
	return r.recent, nil
}

type dashHomeworkRepo struct {
	homework  []models.HomeworkDetail
	subCounts map[string]int
	submitted []string
}

func (r *dashHomeworkRepo) List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkDetail, int, error) {
	return r.homework, len(r.homework), nil
}

func (r *dashHomeworkRepo) CountSubmissions(ctx context.Context, homeworkID string) (int, error) {
	return r.subCounts[homeworkID], nil
}

func (r *dashHomeworkRepo) SubmittedHomeworkIDs(ctx context.Context, studentID string, homeworkIDs []string) ([]string, error) {
	return r.submitted, nil
}

func dashboardFixture() DashboardRepos {
	return DashboardRepos{
		Students:      &dashStudentRepo{count: 120, byClass: map[string]int{}, byID: map[string]*models.StudentDetail{}},
		Teachers:      &dashTeacherRepo{count: 12, byID: map[string]*models.TeacherDetail{}},
		Parents:       &dashParentRepo{count: 90},
		Classes:       &dashClassRepo{count: 8},
		Attendance:    &dashAttendanceRepo{counts: &models.StatusCounts{Total: 100, Present: 80, Late: 10, Absent: 10}},
		Exams:         &dashExamRepo{},
		Marks:         &dashMarkRepo{},
		Fees:          &dashFeeRepo{summary: &models.FeeSummary{CollectionRate: 72.5}, pending: map[string]float64{}},
		Leaves:        &dashLeaveRepo{pending: 4},
		Timetable:     &dashTimetableRepo{},
		Announcements: &dashAnnouncementRepo{},
		Homework:      &dashHomeworkRepo{subCounts: map[string]int{}},
	}
}

func newDashboardService(repos DashboardRepos, cache dashboardCache, resolver *mockLinkResolver) *DashboardService {
	if resolver == nil {
		resolver = &mockLinkResolver{}
	}
	engine := policy.NewEngine(resolver, zap.NewNop())
	return NewDashboardService(repos, cache, engine, nil, zap.NewNop(), time.Minute)
}

func TestDashboardAdmin(t *testing.T) {
	svc := newDashboardService(dashboardFixture(), nil, nil)

	dash, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, dash.TotalStudents)
	assert.Equal(t, 12, dash.TotalTeachers)
	assert.Equal(t, 90, dash.TotalParents)
	assert.Equal(t, 8, dash.TotalClasses)
	assert.InDelta(t, 90.0, dash.TodayAttendance, 0.001)
	assert.InDelta(t, 72.5, dash.FeeCollectionRate, 0.001)
	assert.Equal(t, 4, dash.PendingLeaveRequests)
}

func TestDashboardAdminCached(t *testing.T) {
	cache := newMemoryCache()
	svc := newDashboardService(dashboardFixture(), cache, nil)

	first, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.TotalStudents, second.TotalStudents)
}

func TestDashboardTeacher(t *testing.T) {
	repos := dashboardFixture()
	repos.Teachers = &dashTeacherRepo{byID: map[string]*models.TeacherDetail{
		"tch-1": {Teacher: models.Teacher{ID: "tch-1", Name: "Ms. Hill"}},
	}}
	repos.Classes = &dashClassRepo{byTeacher: []models.ClassDetail{
		{Class: models.Class{ID: "cls-1", ClassName: "Grade 5", Section: "A"}},
	}}
	repos.Students = &dashStudentRepo{byClass: map[string]int{"cls-1": 30}, byID: map[string]*models.StudentDetail{}}
	repos.Homework = &dashHomeworkRepo{
		homework:  []models.HomeworkDetail{{Homework: models.Homework{ID: "hw-1", ClassID: "cls-1"}}},
		subCounts: map[string]int{"hw-1": 18},
	}
	resolver := &mockLinkResolver{teacherID: "tch-1"}
	svc := newDashboardService(repos, nil, resolver)

	dash, err := svc.Teacher(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, "Ms. Hill", dash.Teacher.Name)
	require.Len(t, dash.Classes, 1)
	require.Len(t, dash.Homework, 1)
	assert.Equal(t, 18, dash.Homework[0].SubmissionCount)
	assert.Equal(t, 30, dash.Homework[0].StudentCount)
}

func TestDashboardTeacherForbiddenForOtherRoles(t *testing.T) {
	svc := newDashboardService(dashboardFixture(), nil, nil)

	_, err := svc.Teacher(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDashboardStudent(t *testing.T) {
	classID := "cls-1"
	repos := dashboardFixture()
	repos.Students = &dashStudentRepo{byID: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", Name: "Alice", ClassID: &classID}},
	}}
	repos.Homework = &dashHomeworkRepo{
		homework: []models.HomeworkDetail{
			{Homework: models.Homework{ID: "hw-1", ClassID: classID}},
			{Homework: models.Homework{ID: "hw-2", ClassID: classID}},
		},
		submitted: []string{"hw-1"},
	}
	repos.Marks = &dashMarkRepo{recent: []models.MarkDetail{
		{Mark: models.Mark{MarksScored: 45}, MaxMarks: 50},
	}}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newDashboardService(repos, nil, resolver)

	dash, err := svc.Student(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "Alice", dash.Student.Name)
	assert.InDelta(t, 90.0, dash.AttendancePercentage, 0.001)
	require.Len(t, dash.PendingHomework, 1, "submitted homework is excluded")
	assert.Equal(t, "hw-2", dash.PendingHomework[0].ID)
	require.Len(t, dash.RecentMarks, 1)
	assert.InDelta(t, 90.0, dash.RecentMarks[0].Percentage, 0.001)
}

func TestDashboardStudentWithoutProfile(t *testing.T) {
	resolver := &mockLinkResolver{studentErr: sql.ErrNoRows}
	svc := newDashboardService(dashboardFixture(), nil, resolver)

	_, err := svc.Student(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDashboardParent(t *testing.T) {
	repos := dashboardFixture()
	repos.Students = &dashStudentRepo{byID: map[string]*models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", Name: "Alice"}},
		"stu-2": {Student: models.Student{ID: "stu-2", Name: "Bob"}},
	}}
	repos.Marks = &dashMarkRepo{avg: 81.5, hasAvg: true}
	repos.Fees = &dashFeeRepo{pending: map[string]float64{"stu-1": 150, "stu-2": 0}}
	resolver := &mockLinkResolver{childIDs: []string{"stu-1", "stu-2", "stu-gone"}}
	svc := newDashboardService(repos, nil, resolver)

	dash, err := svc.Parent(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleParent})
	require.NoError(t, err)
	require.Len(t, dash.Children, 2, "children with missing profiles are skipped")
	assert.InDelta(t, 81.5, dash.Children[0].AverageMarks, 0.001)
	assert.Equal(t, 150.0, dash.Children[0].PendingFees)
}

func TestDashboardParentForbiddenForAdmins(t *testing.T) {
	svc := newDashboardService(dashboardFixture(), nil, nil)

	_, err := svc.Parent(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
