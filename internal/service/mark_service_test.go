package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockMarkRepo struct {
	marks      map[string]*models.MarkDetail
	listed     []models.MarkDetail
	total      int
	lastFilter models.MarkFilter
	duplicates map[string]bool
	created    []*models.Mark
	createErr  error
	deletedID  string
	byStudent  []models.MarkDetail
}

func (m *mockMarkRepo) List(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, int, error) {
	m.lastFilter = filter
	return m.listed, m.total, nil
}

func (m *mockMarkRepo) FindByID(ctx context.Context, id string) (*models.MarkDetail, error) {
	mk, ok := m.marks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mk, nil
}

func (m *mockMarkRepo) ExistsForExamStudent(ctx context.Context, examID, studentID string) (bool, error) {
	return m.duplicates[examID+"/"+studentID], nil
}

func (m *mockMarkRepo) Create(ctx context.Context, mark *models.Mark) error {
	if m.createErr != nil {
		return m.createErr
	}
	mark.ID = "mark-1"
	m.created = append(m.created, mark)
	if m.marks == nil {
		m.marks = make(map[string]*models.MarkDetail)
	}
	m.marks[mark.ID] = &models.MarkDetail{Mark: *mark, MaxMarks: 100}
	return nil
}

func (m *mockMarkRepo) Update(ctx context.Context, id string, marksScored float64, remarks *string) error {
	if mk, ok := m.marks[id]; ok {
		mk.MarksScored = marksScored
		mk.Remarks = remarks
	}
	return nil
}

func (m *mockMarkRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func (m *mockMarkRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.MarkDetail, error) {
	return m.byStudent, nil
}

type mockMarkExamRepo struct {
	exam *models.ExamDetail
}

func (m *mockMarkExamRepo) FindByID(ctx context.Context, id string) (*models.ExamDetail, error) {
	if m.exam == nil {
		return nil, sql.ErrNoRows
	}
	return m.exam, nil
}

func newMarkService(marks *mockMarkRepo, exams *mockMarkExamRepo, students *mockStudentChecker, resolver *mockLinkResolver) *MarkService {
	if resolver == nil {
		resolver = &mockLinkResolver{}
	}
	engine := policy.NewEngine(resolver, zap.NewNop())
	return NewMarkService(marks, exams, students, engine, validator.New(), zap.NewNop())
}

func examFixture(max float64) *models.ExamDetail {
	return &models.ExamDetail{Exam: models.Exam{ID: "exam-1", ExamName: "Midterm", MaxMarks: max}}
}

func TestMarkRecord(t *testing.T) {
	repo := &mockMarkRepo{}
	svc := newMarkService(repo, &mockMarkExamRepo{exam: examFixture(100)}, &mockStudentChecker{exists: true}, nil)

	detail, err := svc.Record(context.Background(), RecordMarkRequest{
		ExamID:      "exam-1",
		StudentID:   "stu-1",
		MarksScored: 85,
	})
	require.NoError(t, err)
	assert.Equal(t, 85.0, detail.MarksScored)
	assert.InDelta(t, 85.0, detail.Percentage, 0.001)
	require.Len(t, repo.created, 1)
}

func TestMarkRecordExceedsMaximum(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, &mockMarkExamRepo{exam: examFixture(50)}, &mockStudentChecker{exists: true}, nil)

	_, err := svc.Record(context.Background(), RecordMarkRequest{
		ExamID:      "exam-1",
		StudentID:   "stu-1",
		MarksScored: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkRecordDuplicate(t *testing.T) {
	repo := &mockMarkRepo{duplicates: map[string]bool{"exam-1/stu-1": true}}
	svc := newMarkService(repo, &mockMarkExamRepo{exam: examFixture(100)}, &mockStudentChecker{exists: true}, nil)

	_, err := svc.Record(context.Background(), RecordMarkRequest{
		ExamID:      "exam-1",
		StudentID:   "stu-1",
		MarksScored: 40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestMarkRecordUnknownExam(t *testing.T) {
	svc := newMarkService(&mockMarkRepo{}, &mockMarkExamRepo{}, &mockStudentChecker{exists: true}, nil)

	_, err := svc.Record(context.Background(), RecordMarkRequest{
		ExamID:      "ghost",
		StudentID:   "stu-1",
		MarksScored: 40,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMarkBulkRecordPartialFailure(t *testing.T) {
	repo := &mockMarkRepo{duplicates: map[string]bool{"exam-1/stu-2": true}}
	svc := newMarkService(repo, &mockMarkExamRepo{exam: examFixture(100)}, &mockStudentChecker{exists: true}, nil)

	result, err := svc.BulkRecord(context.Background(), BulkMarkRequest{
		ExamID: "exam-1",
		Entries: []BulkMarkEntry{
			{StudentID: "stu-1", MarksScored: 70},
			{StudentID: "stu-2", MarksScored: 80},
			{StudentID: "stu-3", MarksScored: 120},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, 2, result.Errors[1].Index)
}

func TestMarkUpdateKeepsMaximumRule(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.MarkDetail{
		"mark-1": {Mark: models.Mark{ID: "mark-1", MarksScored: 40}, MaxMarks: 50},
	}}
	svc := newMarkService(repo, &mockMarkExamRepo{exam: examFixture(50)}, &mockStudentChecker{exists: true}, nil)

	_, err := svc.Update(context.Background(), "mark-1", UpdateMarkRequest{MarksScored: 55})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	detail, err := svc.Update(context.Background(), "mark-1", UpdateMarkRequest{MarksScored: 45})
	require.NoError(t, err)
	assert.Equal(t, 45.0, detail.MarksScored)
	assert.InDelta(t, 90.0, detail.Percentage, 0.001)
}

func TestMarkListScopesStudent(t *testing.T) {
	repo := &mockMarkRepo{}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newMarkService(repo, &mockMarkExamRepo{}, &mockStudentChecker{}, resolver)

	_, err := svc.List(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, models.MarkFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, repo.lastFilter.StudentIDs)
}

func TestMarkListRejectsForeignStudentFilter(t *testing.T) {
	repo := &mockMarkRepo{}
	resolver := &mockLinkResolver{studentID: "stu-1"}
	svc := newMarkService(repo, &mockMarkExamRepo{}, &mockStudentChecker{}, resolver)

	_, err := svc.List(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, models.MarkFilter{
		StudentIDs: []string{"stu-2"}, Page: 1, PageSize: 20,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkGetOwnershipCheck(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.MarkDetail{
		"mark-1": {Mark: models.Mark{ID: "mark-1", StudentID: "stu-1", MarksScored: 45}, MaxMarks: 100},
	}}
	resolver := &mockLinkResolver{studentID: "stu-2"}
	svc := newMarkService(repo, &mockMarkExamRepo{}, &mockStudentChecker{}, resolver)

	_, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "mark-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	resolver.studentID = "stu-1"
	detail, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "mark-1")
	require.NoError(t, err)
	assert.Equal(t, "mark-1", detail.ID)
	assert.Equal(t, 45.0, detail.MarksScored)
}

func TestMarkStudentPerformance(t *testing.T) {
	repo := &mockMarkRepo{byStudent: []models.MarkDetail{
		{Mark: models.Mark{MarksScored: 80}, MaxMarks: 100},
		{Mark: models.Mark{MarksScored: 40}, MaxMarks: 50},
	}}
	svc := newMarkService(repo, &mockMarkExamRepo{}, &mockStudentChecker{exists: true}, nil)

	perf, err := svc.StudentPerformance(context.Background(), policy.Principal{Role: models.RoleAdmin}, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, perf.TotalExams)
	assert.Equal(t, 120.0, perf.TotalScored)
	assert.Equal(t, 150.0, perf.TotalMax)
	assert.InDelta(t, 80.0, perf.OverallPercentage, 0.001)
}

func TestMarkStudentPerformanceForbidden(t *testing.T) {
	resolver := &mockLinkResolver{childIDs: []string{"stu-1"}}
	svc := newMarkService(&mockMarkRepo{}, &mockMarkExamRepo{}, &mockStudentChecker{exists: true}, resolver)

	_, err := svc.StudentPerformance(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleParent}, "stu-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkDelete(t *testing.T) {
	repo := &mockMarkRepo{marks: map[string]*models.MarkDetail{
		"mark-1": {Mark: models.Mark{ID: "mark-1"}, MaxMarks: 100},
	}}
	svc := newMarkService(repo, &mockMarkExamRepo{}, &mockStudentChecker{}, nil)

	require.NoError(t, svc.Delete(context.Background(), "mark-1"))
	assert.Equal(t, "mark-1", repo.deletedID)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
